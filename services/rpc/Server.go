// Package rpc serves the node control surface over bitcoind style JSON-RPC
// 1.0 on HTTP POST.
package rpc

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/bsv-blockchain/fingerprint/errors"
	"github.com/bsv-blockchain/fingerprint/model"
	"github.com/bsv-blockchain/fingerprint/services/blockchain"
	"github.com/bsv-blockchain/fingerprint/services/legacy"
	"github.com/bsv-blockchain/fingerprint/services/rpc/bsvjson"
	"github.com/bsv-blockchain/fingerprint/settings"
	"github.com/bsv-blockchain/fingerprint/ulogger"
	"github.com/bsv-blockchain/fingerprint/util/health"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/ordishs/gocore"
)

const maxRequestSize = 1 << 20

// Node is the control surface the handlers drive.
type Node interface {
	SetMockTime(unix int64)
	Generate(ctx context.Context, n int) ([]*chainhash.Hash, error)
	GetBlockHeader(hash *chainhash.Hash) (*model.BlockHeaderInfo, error)
	GetBlockCount() uint32
	GetBestBlockHash() *chainhash.Hash
	GetPeerInfo() []legacy.PeerInfo
	Chain() *blockchain.Chain
}

type commandHandler func(ctx context.Context, s *RPCServer, params []json.RawMessage) (interface{}, error)

// rpcHandlers is filled in init to break the initialization cycle with the
// handlers that reference it.
var rpcHandlers map[string]commandHandler

type RPCServer struct {
	logger     ulogger.Logger
	settings   *settings.Settings
	stats      *gocore.Stat
	node       Node
	authsha    [sha256.Size]byte
	listener   net.Listener
	httpServer *http.Server
}

// NewServer returns an RPC server for node. Requests must carry HTTP basic
// auth when rpc_user is set.
func NewServer(logger ulogger.Logger, tSettings *settings.Settings, node Node) *RPCServer {
	initPrometheusMetrics()

	s := &RPCServer{
		logger:   logger.New("rpc"),
		settings: tSettings,
		stats:    gocore.NewStat("rpc"),
		node:     node,
	}

	if tSettings.RPC.RPCUser != "" {
		login := tSettings.RPC.RPCUser + ":" + tSettings.RPC.RPCPass
		s.authsha = sha256.Sum256([]byte("Basic " + base64.StdEncoding.EncodeToString([]byte(login))))
	}

	return s
}

func (s *RPCServer) Health(ctx context.Context, checkLiveness bool) (int, string, error) {
	if checkLiveness {
		return http.StatusOK, "OK", nil
	}

	checks := []health.Check{
		{Name: "Listener", Check: func(context.Context, bool) (int, string, error) {
			if s.listener == nil {
				return http.StatusServiceUnavailable, "not listening", nil
			}

			return http.StatusOK, "OK", nil
		}},
	}

	return health.CheckAll(ctx, checkLiveness, checks)
}

func (s *RPCServer) Init(_ context.Context) error {
	if s.settings.RPC.ListenAddress == "" {
		return errors.NewConfigurationError("no rpc listen address configured, set rpc_listenAddress")
	}

	listener, err := net.Listen("tcp", s.settings.RPC.ListenAddress)
	if err != nil {
		return errors.NewServiceError("failed to listen on %s", s.settings.RPC.ListenAddress, err)
	}

	s.listener = listener

	s.httpServer = &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.settings.RPC.RPCTimeout,
	}

	return nil
}

// Start serves requests until ctx is done.
func (s *RPCServer) Start(ctx context.Context, readyCh chan<- struct{}) error {
	errCh := make(chan error, 1)

	go func() {
		errCh <- s.httpServer.Serve(s.listener)
	}()

	s.logger.Infof("rpc listening on %s", s.listener.Addr())

	close(readyCh)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return errors.NewServiceError("rpc server failed", err)
		}

		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return errors.NewServiceError("failed to shut down rpc server", err)
	}

	return nil
}

func (s *RPCServer) Stop(_ context.Context) error {
	return nil
}

// Addr returns the bound listen address.
func (s *RPCServer) Addr() string {
	if s.listener == nil {
		return ""
	}

	return s.listener.Addr().String()
}

// checkAuth compares the Authorization header with the configured
// credentials in constant time. Without configured credentials every
// request is accepted.
func (s *RPCServer) checkAuth(r *http.Request) error {
	if s.settings.RPC.RPCUser == "" {
		return nil
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return errors.NewAuthenticationError("auth failure: no authorization header")
	}

	authsha := sha256.Sum256([]byte(authHeader))

	if subtle.ConstantTimeCompare(authsha[:], s.authsha[:]) != 1 {
		return errors.NewAuthenticationError("auth failure: invalid credentials")
	}

	return nil
}

func (s *RPCServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "only POST is supported", http.StatusMethodNotAllowed)
		return
	}

	if err := s.checkAuth(r); err != nil {
		s.logger.Warnf("rpc request from %s rejected: %v", r.RemoteAddr, err)
		w.Header().Set("WWW-Authenticate", `Basic realm="fingerprint RPC"`)
		http.Error(w, "401 Unauthorized.", http.StatusUnauthorized)

		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestSize))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	reply := s.handleRequest(r.Context(), body)

	w.Header().Set("Content-Type", "application/json")

	if _, err = w.Write(reply); err != nil {
		s.logger.Warnf("failed to write rpc reply: %v", err)
	}
}

// handleRequest parses and runs a single request and returns the marshalled
// reply. Parse failures are answered with a null id.
func (s *RPCServer) handleRequest(ctx context.Context, body []byte) []byte {
	var request bsvjson.Request

	if err := json.Unmarshal(body, &request); err != nil {
		return s.createMarshalledReply(nil, nil, bsvjson.NewRPCError(bsvjson.ErrRPCParse, "failed to parse request: "+err.Error()))
	}

	if request.Method == "" {
		return s.createMarshalledReply(request.ID, nil, bsvjson.NewRPCError(bsvjson.ErrRPCInvalidRequest, "method is required"))
	}

	handler, ok := rpcHandlers[request.Method]
	if !ok {
		return s.createMarshalledReply(request.ID, nil, bsvjson.NewRPCError(bsvjson.ErrRPCMethodNotFound, "method not found"))
	}

	start := gocore.CurrentTime()
	defer s.stats.NewStat(request.Method).AddTime(start)

	timer := time.Now()

	result, err := handler(ctx, s, request.Params)

	prometheusRPCRequests.WithLabelValues(request.Method).Observe(time.Since(timer).Seconds())

	if err != nil {
		prometheusRPCErrors.WithLabelValues(request.Method, rpcErrorCategory(err)).Inc()
	}

	s.logger.Debugf("rpc %s took %s", request.Method, time.Since(timer))

	return s.createMarshalledReply(request.ID, result, err)
}

// rpcErrorCategory labels handler errors. Errors the handler already mapped
// to an RPC code are caller mistakes.
func rpcErrorCategory(err error) string {
	var rpcErr *bsvjson.RPCError
	if errors.As(err, &rpcErr) {
		return "request"
	}

	return errors.GetErrorCategory(err)
}

// createMarshalledReply turns err into an RPCError, keeping its code when it
// already is one.
func (s *RPCServer) createMarshalledReply(id, result interface{}, err error) []byte {
	var rpcErr *bsvjson.RPCError

	if err != nil {
		if !errors.As(err, &rpcErr) {
			s.logger.Warnf("rpc request failed (%s): %v", errors.GetErrorCategory(err), err)
			rpcErr = bsvjson.NewRPCError(bsvjson.ErrRPCInternal, err.Error())
		}
	}

	reply, marshalErr := bsvjson.MarshalResponse(id, result, rpcErr)
	if marshalErr != nil {
		s.logger.Errorf("failed to marshal rpc reply: %v", marshalErr)

		reply, _ = bsvjson.MarshalResponse(id, nil, bsvjson.NewRPCError(bsvjson.ErrRPCInternal, "failed to marshal reply"))
	}

	return reply
}
