package commands

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionsCommandPrintsTable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"ok","data":[{"conn_id":"c1","initiator_name":"iqn.1993-08.org.debian:initiator","target_name":"iqn.2026-01.com.example:t0","remote_addr":"10.0.0.5:4000","tsih":7,"stage":"full_feature"}]}`)
	}))
	defer srv.Close()

	root := GetRootCmd()
	root.SetArgs([]string{"sessions", "--server", srv.URL})
	require.NoError(t, root.Execute())
}

func TestTargetsCommandWithNoTargets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"ok","data":[]}`)
	}))
	defer srv.Close()

	root := GetRootCmd()
	root.SetArgs([]string{"targets", "--server", srv.URL})
	assert.NoError(t, root.Execute())
}
