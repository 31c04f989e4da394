package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/caddyserver/caddy/v2"
	"github.com/caddyserver/caddy/v2/caddyconfig/httpcaddyfile"
	"github.com/caddyserver/caddy/v2/modules/caddyhttp"
	"github.com/packetloop/quichs"
	"github.com/packetloop/quichs/modcaddy/app"
	"go.uber.org/zap"
)

func init() {
	caddy.RegisterModule(Handler{})
	httpcaddyfile.RegisterHandlerDirective("clienthellod", func(h httpcaddyfile.Helper) (caddyhttp.MiddlewareHandler, error) {
		m := &Handler{}
		// err := m.UnmarshalCaddyfile(h.Dispenser)
		return m, nil
	})
}

type Handler struct {
	logger    *zap.Logger
	reservoir *app.Reservoir
}

// CaddyModule returns the Caddy module information.
func (Handler) CaddyModule() caddy.ModuleInfo {
	return caddy.ModuleInfo{
		ID:  "http.handlers.clienthellod",
		New: func() caddy.Module { return new(Handler) },
	}
}

// Provision implements caddy.Provisioner.
func (h *Handler) Provision(ctx caddy.Context) error {
	h.logger = ctx.Logger(h)
	if ctx.AppIfConfigured(app.CaddyAppID) == nil {
		return errors.New("handler: clienthellod is not configured")
	}
	a, err := ctx.App(app.CaddyAppID)
	if err != nil {
		return err
	}
	h.reservoir = a.(*app.Reservoir)
	h.logger.Info("clienthellod handler provisioned!")
	return nil
}

func (h *Handler) ServeHTTP(wr http.ResponseWriter, req *http.Request, next caddyhttp.Handler) error {
	// HTTP/1.1 and HTTP/2 arrive over the TCP connection whose ClientHello
	// the listener wrapper deposited; HTTP/3 arrives over the UDP flow whose
	// Initial packet(s) were deposited as a QUIC CIP instead. Try both.
	if ch := h.reservoir.WithdrawClientHello(req.RemoteAddr); ch != nil {
		return h.serveClientHello(wr, req, next, ch)
	}

	if cip := h.reservoir.WithdrawQUICCIP(req.RemoteAddr); cip != nil {
		return h.serveQUICCIP(wr, req, cip)
	}

	h.logger.Debug(fmt.Sprintf("Can't withdraw client hello from %s, is it not a TLS or QUIC connection?", req.RemoteAddr))
	return next.ServeHTTP(wr, req)
}

func (h *Handler) serveClientHello(wr http.ResponseWriter, req *http.Request, next caddyhttp.Handler, ch *clienthellod.ClientHello) error {
	h.logger.Debug(fmt.Sprintf("Withdrew client hello from %s", req.RemoteAddr))

	err := ch.ParseClientHello()
	if err != nil {
		h.logger.Error("failed to parse client hello", zap.Error(err))
		return next.ServeHTTP(wr, req)
	}

	h.logger.Debug("ClientHello ID: " + ch.FingerprintID(false))
	h.logger.Debug("ClientHello NormID: " + ch.FingerprintID(true))

	return h.writeJSON(wr, req, ch)
}

func (h *Handler) serveQUICCIP(wr http.ResponseWriter, req *http.Request, cip *clienthellod.ClientInitialPacket) error {
	h.logger.Debug(fmt.Sprintf("Withdrew QUIC client initial from %s", req.RemoteAddr))
	return h.writeJSON(wr, req, cip)
}

func (h *Handler) writeJSON(wr http.ResponseWriter, req *http.Request, v interface{}) error {
	var b []byte
	var err error
	if req.URL.Query().Get("beautify") == "true" {
		b, err = json.MarshalIndent(v, "", "  ")
	} else {
		b, err = json.Marshal(v)
	}
	if err != nil {
		h.logger.Error("failed to marshal response", zap.Error(err))
		return err
	}

	wr.Header().Set("Content-Type", "application/json")
	wr.Header().Set("Connection", "close")
	_, err = wr.Write(b)
	if err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
	return err
}

// Interface guards
var (
	_ caddy.Provisioner           = (*Handler)(nil)
	_ caddyhttp.MiddlewareHandler = (*Handler)(nil)
	// _ caddyfile.Unmarshaler       = (*Handler)(nil)
)
