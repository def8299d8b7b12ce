package connection

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregate/iscsid/internal/iscsi/auth"
	"github.com/coregate/iscsid/internal/iscsi/pdu"
	"github.com/coregate/iscsid/internal/iscsi/scsi"
	"github.com/coregate/iscsid/internal/iscsi/session"
	"github.com/coregate/iscsid/pkg/device"
)

const testTargetName = "iqn.2026-01.com.example:target0"

// fakeLUNs is a single-target, single-LUN LUNSource backed by one
// in-memory device, enough to exercise the FFP command path end to end.
type fakeLUNs struct {
	dev *device.MemDevice
}

func (f *fakeLUNs) Lookup(targetName string, lun uint64) (device.BlockDevice, scsi.Identity, bool) {
	if targetName != testTargetName || lun != 0 {
		return nil, scsi.Identity{}, false
	}
	return f.dev, scsi.Identity{VendorID: "COREGATE", ProductID: "ISCSID", ProductRev: "0001"}, true
}

func (f *fakeLUNs) LUNs(targetName string) []uint64 {
	if targetName != testTargetName {
		return nil
	}
	return []uint64{0}
}

func (f *fakeLUNs) Portals() []Portal {
	return []Portal{{TargetName: testTargetName, Address: "127.0.0.1:3260"}}
}

func testLoginConfig() session.Config {
	return session.Config{
		TargetName:      testTargetName,
		RequireCHAP:     false,
		CredentialStore: auth.NewMemCredentialStore(),
		MaxConnections:  16,
	}
}

// startServedConn wires a Conn to one end of an in-memory net.Pipe and
// runs Serve on a background goroutine, returning the other end for the
// test to drive as the initiator. The returned stop func closes the
// client side and blocks until Serve has returned; every test must call
// it (directly or because the scripted exchange ends in a Logout, which
// makes the server close the pipe on its own) before returning.
func startServedConn(t *testing.T, luns LUNSource) (client net.Conn, stop func()) {
	t.Helper()
	serverSide, clientSide := net.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	c := New(serverSide, testLoginConfig(), luns, nil)

	finished := make(chan struct{})
	go func() {
		c.Serve(ctx)
		close(finished)
	}()

	return clientSide, func() {
		_ = clientSide.Close()
		cancel()
		<-finished
	}
}

func sendPDU(t *testing.T, conn net.Conn, p *pdu.PDU) {
	t.Helper()
	_, err := p.WriteTo(conn)
	require.NoError(t, err)
}

func recvPDU(t *testing.T, conn net.Conn) *pdu.PDU {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	p, err := pdu.Parse(conn, pdu.DefaultMaxDataSegmentLength*4)
	require.NoError(t, err)
	return p
}

func loginFullFeaturePhase(t *testing.T, conn net.Conn) {
	t.Helper()

	req := pdu.New(pdu.OpLoginRequest, 1)
	req.Header.SetCSG(byte(session.WireSecurityNegotiation))
	req.Header.SetNSG(byte(session.WireLoginOperationalNegotiation))
	req.Header.SetTransit(true)
	req.Data = pdu.EncodeKeyValues(pdu.KeyValueList{
		{Key: "InitiatorName", Value: "iqn.2026-01.com.example:initiator0"},
		{Key: "SessionType", Value: "Normal"},
		{Key: "TargetName", Value: testTargetName},
		{Key: "AuthMethod", Value: "None"},
	})
	sendPDU(t, conn, req)

	resp := recvPDU(t, conn)
	require.Equal(t, pdu.OpLoginResponse, resp.Opcode())
	require.Equal(t, uint8(pdu.StatusClassSuccess), resp.Header.StatusClass())

	req2 := pdu.New(pdu.OpLoginRequest, 2)
	req2.Header.SetTSIH(resp.Header.TSIH())
	req2.Header.SetCSG(byte(session.WireLoginOperationalNegotiation))
	req2.Header.SetNSG(byte(session.WireFullFeaturePhase))
	req2.Header.SetTransit(true)
	sendPDU(t, conn, req2)

	resp2 := recvPDU(t, conn)
	require.Equal(t, pdu.OpLoginResponse, resp2.Opcode())
	require.Equal(t, uint8(pdu.StatusClassSuccess), resp2.Header.StatusClass())
	require.Equal(t, byte(session.WireFullFeaturePhase), resp2.Header.NSG())
}

// TestConnLoginThenWriteThenReadRoundTrip exercises spec scenario 5: a
// full login handshake followed by a WRITE(10) whose data fits as
// immediate data, then a READ(10) of the same blocks.
func TestConnLoginThenWriteThenReadRoundTrip(t *testing.T) {
	luns := &fakeLUNs{dev: device.NewMemDevice(1024, 512)}
	conn, stop := startServedConn(t, luns)
	defer stop()

	loginFullFeaturePhase(t, conn)

	payload := make([]byte, 512)
	for i := range payload {
		payload[i] = byte(i)
	}

	writeReq := pdu.New(pdu.OpSCSICommand, 10)
	writeReq.Header.SetLUN(0)
	writeReq.Header.SetWrite(true)
	writeReq.Header.SetExpectedDataTransferLength(uint32(len(payload)))
	cdb := make([]byte, 10)
	cdb[0] = scsi.Write10
	cdb[8] = 1 // transfer length: 1 block
	writeReq.Header.SetCDB(cdb)
	writeReq.Header.SetCmdSN(0)
	writeReq.Data = payload
	sendPDU(t, conn, writeReq)

	writeResp := recvPDU(t, conn)
	require.Equal(t, pdu.OpSCSIResponse, writeResp.Opcode())
	assert.Equal(t, uint8(scsi.StatusGood), writeResp.Header.SCSIStatus())

	readReq := pdu.New(pdu.OpSCSICommand, 11)
	readReq.Header.SetLUN(0)
	readReq.Header.SetRead(true)
	readReq.Header.SetExpectedDataTransferLength(512)
	rcdb := make([]byte, 10)
	rcdb[0] = scsi.Read10
	rcdb[8] = 1
	readReq.Header.SetCDB(rcdb)
	readReq.Header.SetCmdSN(1)
	sendPDU(t, conn, readReq)

	dataIn := recvPDU(t, conn)
	require.Equal(t, pdu.OpSCSIDataIn, dataIn.Opcode())
	assert.True(t, dataIn.Header.Final())
	assert.True(t, dataIn.Header.StatusPresent())
	assert.Equal(t, uint8(scsi.StatusGood), dataIn.Header.SCSIStatus())
	assert.Equal(t, payload, dataIn.Data)

	logoutReq := pdu.New(pdu.OpLogoutRequest, 12)
	logoutReq.Header.SetCmdSN(2)
	sendPDU(t, conn, logoutReq)

	logoutResp := recvPDU(t, conn)
	require.Equal(t, pdu.OpLogoutResponse, logoutResp.Opcode())
}

// TestConnNopOutPingGetsNoReply exercises the keepalive case: a NOP-Out
// sent with ITT=0xffffffff (a ping) gets no NOP-In in response, so the
// following Logout's response is the very next PDU off the wire.
func TestConnNopOutPingGetsNoReply(t *testing.T) {
	luns := &fakeLUNs{dev: device.NewMemDevice(1024, 512)}
	conn, stop := startServedConn(t, luns)
	defer stop()

	loginFullFeaturePhase(t, conn)

	ping := pdu.New(pdu.OpNopOut, 0xffffffff)
	ping.Header.SetCmdSN(0)
	sendPDU(t, conn, ping)

	logoutReq := pdu.New(pdu.OpLogoutRequest, 1)
	logoutReq.Header.SetCmdSN(1)
	sendPDU(t, conn, logoutReq)

	resp := recvPDU(t, conn)
	require.Equal(t, pdu.OpLogoutResponse, resp.Opcode())
}

// TestConnNopOutEchoed covers the non-ping NOP-Out path.
func TestConnNopOutEchoed(t *testing.T) {
	luns := &fakeLUNs{dev: device.NewMemDevice(1024, 512)}
	conn, stop := startServedConn(t, luns)
	defer stop()

	loginFullFeaturePhase(t, conn)

	ping := pdu.New(pdu.OpNopOut, 5)
	ping.Header.SetCmdSN(0)
	ping.Data = []byte("hello")
	sendPDU(t, conn, ping)

	resp := recvPDU(t, conn)
	require.Equal(t, pdu.OpNopIn, resp.Opcode())
	assert.Equal(t, uint32(5), resp.Header.ITT())
	assert.Equal(t, []byte("hello"), resp.Data)
}

// TestConnDiscoveryTextRequest covers SendTargets=All discovery.
func TestConnDiscoveryTextRequest(t *testing.T) {
	luns := &fakeLUNs{dev: device.NewMemDevice(1024, 512)}
	conn, stop := startServedConn(t, luns)
	defer stop()

	loginFullFeaturePhase(t, conn)

	req := pdu.New(pdu.OpTextRequest, 20)
	req.Header.SetFinal(true)
	req.Header.SetCmdSN(0)
	req.Data = pdu.EncodeKeyValues(pdu.KeyValueList{{Key: "SendTargets", Value: "All"}})
	sendPDU(t, conn, req)

	resp := recvPDU(t, conn)
	require.Equal(t, pdu.OpTextResponse, resp.Opcode())

	kvs, err := pdu.ParseKeyValues(resp.Data)
	require.NoError(t, err)
	name, ok := kvs.Get("TargetName")
	require.True(t, ok)
	assert.Equal(t, testTargetName, name)
	addr, ok := kvs.Get("TargetAddress")
	require.True(t, ok)
	assert.Equal(t, "127.0.0.1:3260,1", addr)
}

// TestConnUnknownOpcodeGetsReject exercises the FFP reject path for an
// opcode this target does not implement.
func TestConnUnknownOpcodeGetsReject(t *testing.T) {
	luns := &fakeLUNs{dev: device.NewMemDevice(1024, 512)}
	conn, stop := startServedConn(t, luns)
	defer stop()

	loginFullFeaturePhase(t, conn)

	req := pdu.New(pdu.Opcode(0x10), 99)
	sendPDU(t, conn, req)

	resp := recvPDU(t, conn)
	require.Equal(t, pdu.OpReject, resp.Opcode())
	assert.Equal(t, uint8(pdu.RejectReasonCommandNotSupported), resp.Header.Reason())

	logoutReq := pdu.New(pdu.OpLogoutRequest, 100)
	logoutReq.Header.SetCmdSN(1)
	sendPDU(t, conn, logoutReq)
	logoutResp := recvPDU(t, conn)
	require.Equal(t, pdu.OpLogoutResponse, logoutResp.Opcode())
}
