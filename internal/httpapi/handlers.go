package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/StudioVBG/TALOK-sub014/internal/domain"
	"github.com/StudioVBG/TALOK-sub014/internal/idempotency"
	"github.com/StudioVBG/TALOK-sub014/internal/ratelimit"
	"github.com/StudioVBG/TALOK-sub014/internal/signing"
	"github.com/StudioVBG/TALOK-sub014/pkg/evidencehash"
	"github.com/StudioVBG/TALOK-sub014/pkg/httpx"
	"github.com/StudioVBG/TALOK-sub014/pkg/logger"

	"github.com/go-chi/chi/v5"
)

const signEndpoint = "POST /invite/{token}/sign"

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	p, err := s.svc.Preview(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"request_id": httpx.RequestID(r), "preview": p})
}

func (s *Server) handleRequestOTP(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if !s.enforceRateLimit(w, r, s.otpByIP, ratelimit.ClientIP(r, s.cfg.TrustProxy)) ||
		!s.enforceRateLimit(w, r, s.otpByToken, tokenScope(token)) {
		return
	}
	ch, err := s.svc.RequestOTP(r.Context(), token)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusAccepted, map[string]any{"request_id": httpx.RequestID(r), "challenge": ch})
}

type signBody struct {
	Code           string `json:"code"`
	SignatureImage string `json:"signature_image,omitempty"`
}

func (s *Server) handleSign(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	ip := ratelimit.ClientIP(r, s.cfg.TrustProxy)
	if !s.enforceRateLimit(w, r, s.signByIP, ip) {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	var body signBody
	if err := httpx.ReadJSON(r, &body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpx.WriteError(w, r, http.StatusRequestEntityTooLarge, "TOO_LARGE", "request body too large", nil)
			return
		}
		httpx.WriteError(w, r, http.StatusBadRequest, "BAD_JSON", "request body is not valid JSON", nil)
		return
	}
	if strings.TrimSpace(body.Code) == "" {
		httpx.WriteError(w, r, http.StatusBadRequest, "BAD_REQUEST", "code is required", nil)
		return
	}

	key := idempotency.Key{
		ScopeID:        tokenScope(token),
		ActorID:        "invitee",
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	}
	if s.idem != nil {
		rec, replayed, err := idempotency.Replay(r.Context(), s.idem, key, signEndpoint)
		if err != nil {
			s.writeDomainError(w, r, err)
			return
		}
		if replayed {
			w.Header().Set("content-type", "application/json")
			w.Header().Set("Idempotent-Replayed", "true")
			w.WriteHeader(rec.ResponseStatus)
			_, _ = w.Write(rec.ResponseBody)
			return
		}
	}

	out, err := s.svc.Sign(r.Context(), signing.SignRequest{
		Token:          token,
		Code:           body.Code,
		SignatureImage: body.SignatureImage,
		ClientIP:       ip,
		UserAgent:      r.UserAgent(),
		CorrelationID:  httpx.RequestID(r),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	resp := map[string]any{"request_id": httpx.RequestID(r), "signature": out}
	if s.idem != nil && key.IdempotencyKey != "" {
		buf := bytes.Buffer{}
		_ = json.NewEncoder(&buf).Encode(resp)
		if err := idempotency.Save(r.Context(), s.idem, key, signEndpoint, http.StatusOK, bytes.TrimSpace(buf.Bytes())); err != nil {
			logger.From(r.Context(), s.log).Warn("idempotency record not saved", "error", err)
		}
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) handleInvite(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdmin(w, r) {
		return
	}
	documentID := chi.URLParam(r, "document_id")
	actorID := strings.TrimSpace(r.Header.Get("X-Actor-Id"))
	if actorID == "" {
		actorID = "admin"
	}
	invs, err := s.svc.Invite(logger.WithDocumentID(r.Context(), documentID), documentID, actorID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{"request_id": httpx.RequestID(r), "invitations": invs})
}

// tokenScope keys per-invitation state without storing the bearer token.
func tokenScope(token string) string {
	return "inv_" + evidencehash.HashStringSHA256Hex(token)[:32]
}

// writeDomainError maps the error taxonomy onto the response envelope.
// Messages are fixed strings so responses never reveal why a token failed.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidOrExpiredToken):
		httpx.WriteError(w, r, http.StatusNotFound, "INVALID_INVITATION", "this invitation link is invalid or has expired", nil)
	case errors.Is(err, domain.ErrOTPMismatchOrExpired):
		httpx.WriteError(w, r, http.StatusUnauthorized, "OTP_INVALID", "the verification code is invalid or has expired", nil)
	case errors.Is(err, domain.ErrSignerNotFound):
		httpx.WriteError(w, r, http.StatusForbidden, "NOT_A_SIGNER", "you are not a signer of this document", nil)
	case domain.IsAlreadySigned(err):
		httpx.WriteError(w, r, http.StatusConflict, "ALREADY_SIGNED", "this document has already been signed", nil)
	case errors.Is(err, domain.ErrInvalidArtifact):
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_SIGNATURE_IMAGE", "signature_image must be a base64 PNG, JPEG or WebP data URL", nil)
	case errors.Is(err, domain.ErrDocumentNotFound):
		httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "document not found", nil)
	default:
		logger.From(r.Context(), s.log).Error("request failed", "error", err)
		httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
	}
}
