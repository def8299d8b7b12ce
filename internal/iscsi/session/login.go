package session

import (
	"context"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/coregate/iscsid/internal/iscsi/auth"
	"github.com/coregate/iscsid/internal/iscsi/pdu"
)

// Config carries the per-target policy the login handler enforces, supplied
// by the target server (spec §4.6) and shared read-only across every
// connection worker.
type Config struct {
	TargetName      string
	RequireCHAP     bool
	CredentialStore auth.CredentialStore

	// IsShuttingDown and ActiveConnections let the login handler consult
	// the target server's shared atomics without importing the target
	// package (which itself depends on session), avoiding an import cycle.
	IsShuttingDown    func() bool
	ActiveConnections func() uint32
	MaxConnections    uint32
}

// Result is the outcome of handling one Login Request PDU.
type Result struct {
	Response *pdu.PDU
	// Close is true whenever the response is a reject; per spec §4.4 the
	// connection is closed after any Login Reject is sent.
	Close bool
}

func newLoginResponse(req *pdu.PDU) *pdu.PDU {
	resp := pdu.New(pdu.OpLoginResponse, req.Header.ITT())
	resp.Header.SetISID(req.Header.ISID())
	resp.Header.SetTSIH(req.Header.TSIH())
	return resp
}

func reject(req *pdu.PDU, class, detail byte) *Result {
	resp := newLoginResponse(req)
	resp.Header.SetStatusClass(class)
	resp.Header.SetStatusDetail(detail)
	return &Result{Response: resp, Close: true}
}

// HandleLogin processes one Login Request PDU against sess and cfg, per the
// ordered steps in spec §4.4. The caller (the connection handler) is
// responsible for recognizing that it is in the login phase and routing
// Login Request PDUs here; any non-Login PDU received during login is
// rejected by the caller via BuildInvalidRequestDuringLoginReject instead.
func HandleLogin(sess *Session, cfg Config, req *pdu.PDU) (*Result, error) {
	kvs, err := pdu.ParseKeyValues(req.Data)
	if err != nil {
		return reject(req, pdu.StatusClassInitiatorErr, pdu.StatusDetailMissingParameter), nil
	}

	firstPDU := sess.Stage == StageFree

	if firstPDU {
		initiatorName, hasInitiatorName := kvs.Get("InitiatorName")
		if !hasInitiatorName || initiatorName == "" {
			return reject(req, pdu.StatusClassInitiatorErr, pdu.StatusDetailMissingParameter), nil
		}
		sess.InitiatorName = initiatorName

		sessionTypeStr, hasSessionType := kvs.Get("SessionType")
		sessType := TypeNormal
		if hasSessionType && sessionTypeStr != "" {
			t, ok := ParseType(sessionTypeStr)
			if !ok {
				return reject(req, pdu.StatusClassInitiatorErr, pdu.StatusDetailMissingParameter), nil
			}
			sessType = t
		}
		sess.Type = sessType

		targetName, _ := kvs.Get("TargetName")
		if sessType == TypeNormal {
			if targetName == "" {
				return reject(req, pdu.StatusClassInitiatorErr, pdu.StatusDetailMissingParameter), nil
			}
			if targetName != cfg.TargetName {
				return reject(req, pdu.StatusClassInitiatorErr, pdu.StatusDetailTargetNotFound), nil
			}
		}
		sess.TargetName = targetName

		if cfg.IsShuttingDown != nil && cfg.IsShuttingDown() {
			return reject(req, pdu.StatusClassTargetErr, pdu.StatusDetailServiceUnavailable), nil
		}
		if cfg.ActiveConnections != nil && cfg.MaxConnections > 0 && cfg.ActiveConnections() >= cfg.MaxConnections {
			return reject(req, pdu.StatusClassInitiatorErr, pdu.StatusDetailTooManyConnections), nil
		}

		isid := req.Header.ISID()
		copy(sess.ISID[:], isid[:])
		sess.TSIH = NewTSIH()

		csg, ok := StageFromWire(LoginStage(req.Header.CSG()))
		if !ok {
			return reject(req, pdu.StatusClassInitiatorErr, pdu.StatusDetailMissingParameter), nil
		}
		sess.Stage = csg
	}

	var replyKVs pdu.KeyValueList

	switch sess.Stage {
	case StageSecurityNegotiation:
		replyKVs, err = handleSecurityNegotiation(sess, cfg, kvs)
	case StageLoginOperationalNegotiation:
		replyKVs, err = handleOperationalNegotiation(sess, kvs)
	default:
		return reject(req, pdu.StatusClassInitiatorErr, pdu.StatusDetailMissingParameter), nil
	}
	if err != nil {
		if authErr, ok := err.(*authFailure); ok {
			_ = authErr
			return reject(req, pdu.StatusClassInitiatorErr, pdu.StatusDetailAuthFailure), nil
		}
		// *NegotiateError (an offered key outside its RFC 3720 domain,
		// e.g. MaxRecvDataSegmentLength=0 or MaxConnections=0) and any
		// other operational-negotiation failure both reject here.
		return reject(req, pdu.StatusClassInitiatorErr, pdu.StatusDetailMissingParameter), nil
	}

	transit := req.Header.Transit()
	resp := newLoginResponse(req)
	resp.Header.SetStatusClass(pdu.StatusClassSuccess)
	resp.Header.SetStatusDetail(pdu.StatusDetailSuccess)
	resp.Header.SetCSG(byte(sess.Stage.ToWire()))
	resp.Header.SetTSIH(sess.TSIH)

	nextStage := sess.Stage
	if transit {
		wireNSG, ok := StageFromWire(LoginStage(req.Header.NSG()))
		if !ok {
			return reject(req, pdu.StatusClassInitiatorErr, pdu.StatusDetailMissingParameter), nil
		}
		nextStage = wireNSG
		resp.Header.SetTransit(true)
		resp.Header.SetNSG(byte(nextStage.ToWire()))
	}

	resp.Data = pdu.EncodeKeyValues(replyKVs)

	if transit {
		sess.Stage = nextStage
	}

	return &Result{Response: resp, Close: false}, nil
}

type authFailure struct{ reason string }

func (e *authFailure) Error() string { return "session: chap authentication failed: " + e.reason }

func handleSecurityNegotiation(sess *Session, cfg Config, kvs pdu.KeyValueList) (pdu.KeyValueList, error) {
	var reply pdu.KeyValueList

	if authMethod, hasAuthMethod := kvs.Get("AuthMethod"); hasAuthMethod && authMethod != "" {
		offered := strings.Split(authMethod, ",")
		wantsCHAP := false
		for _, m := range offered {
			if m == "CHAP" {
				wantsCHAP = true
			}
		}

		if cfg.RequireCHAP && !wantsCHAP {
			return nil, &authFailure{reason: "initiator did not offer CHAP"}
		}

		if cfg.RequireCHAP || wantsCHAP {
			reply = append(reply, pdu.KeyValue{Key: "AuthMethod", Value: "CHAP"})
			challenge, err := auth.NewChallenge()
			if err != nil {
				return nil, err
			}
			sess.Chap = &ChapState{Challenge: challenge}
			reply = append(reply,
				pdu.KeyValue{Key: "CHAP_A", Value: "5"},
				pdu.KeyValue{Key: "CHAP_I", Value: strconv.Itoa(int(challenge.Identifier))},
				pdu.KeyValue{Key: "CHAP_C", Value: hex.EncodeToString(challenge.Value)},
			)
			return reply, nil
		}

		reply = append(reply, pdu.KeyValue{Key: "AuthMethod", Value: "None"})
		return reply, nil
	}

	if sess.Chap != nil && !sess.Chap.Verified {
		chapN, hasChapN := kvs.Get("CHAP_N")
		chapRHex, hasChapR := kvs.Get("CHAP_R")
		if !hasChapN || !hasChapR || chapN == "" || chapRHex == "" {
			return nil, &authFailure{reason: "missing CHAP_N/CHAP_R"}
		}

		response, err := hex.DecodeString(chapRHex)
		if err != nil {
			return nil, &authFailure{reason: "malformed CHAP_R"}
		}

		secret, found, lookupErr := cfg.CredentialStore.Lookup(context.Background(), chapN)
		if lookupErr != nil {
			return nil, lookupErr
		}

		if !auth.Verify(sess.Chap.Challenge, secret, found, response) {
			return nil, &authFailure{reason: "CHAP verification failed"}
		}

		sess.Chap.Username = chapN
		sess.Chap.Verified = true
	}

	return reply, nil
}

// handleOperationalNegotiation applies every offered key to sess.Params and
// returns the reply key/value pairs to echo back. An offer outside its
// RFC 3720 domain (e.g. MaxRecvDataSegmentLength=0 or MaxConnections=0) is
// a *NegotiateError, returned immediately so HandleLogin rejects the whole
// Login Request rather than silently accepting a negotiation that never
// completed.
func handleOperationalNegotiation(sess *Session, kvs pdu.KeyValueList) (pdu.KeyValueList, error) {
	var reply pdu.KeyValueList
	for _, kv := range kvs {
		replyVal, recognized, err := sess.Params.Negotiate(kv.Key, kv.Value)
		if !recognized {
			continue
		}
		if err != nil {
			return nil, err
		}
		reply = append(reply, pdu.KeyValue{Key: kv.Key, Value: replyVal})
	}
	return reply, nil
}

// BuildInvalidRequestDuringLoginReject builds the Login Reject the
// connection handler sends when it receives any non-Login PDU while a
// session is still in the login phase (spec §4.4 step 7).
func BuildInvalidRequestDuringLoginReject(itt uint32) *pdu.PDU {
	resp := pdu.New(pdu.OpLoginResponse, itt)
	resp.Header.SetStatusClass(pdu.StatusClassInitiatorErr)
	resp.Header.SetStatusDetail(pdu.StatusDetailInvalidRequestDuringLogin)
	return resp
}
