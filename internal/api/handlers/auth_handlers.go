package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ebooklister/ebooklister/internal/auth/etsy"
	"github.com/ebooklister/ebooklister/internal/logging"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// StartAuth begins an authorization attempt and redirects to the provider. With the default
// session capacity this invalidates any earlier pending attempt.
func (h *Handler) StartAuth(c *gin.Context) {
	authURL, _, err := h.Auth.Begin()
	if err != nil {
		writeError(c, err)
		return
	}
	c.Redirect(http.StatusFound, authURL)
}

// Callback validates the provider redirect, exchanges the code and persists the tokens.
func (h *Handler) Callback(c *gin.Context) {
	ctx := requestContext(c)
	pair, err := h.Auth.CompleteCallback(ctx,
		strings.TrimSpace(c.Query("code")),
		strings.TrimSpace(c.Query("state")),
		strings.TrimSpace(c.Query("error")),
		strings.TrimSpace(c.Query("error_description")),
	)
	if err != nil {
		writeError(c, err)
		return
	}
	resp := gin.H{"message": "Authorization successful! You can close this window."}
	if err = h.Tokens.Store(ctx, *pair); err != nil {
		if !errors.Is(err, etsy.ErrPersistFailed) {
			writeError(c, err)
			return
		}
		logging.FromContext(ctx).Errorf("tokens obtained but not saved: %v", err)
		resp["warning"] = err.Error()
	}
	log.Info("authorization completed")
	c.JSON(http.StatusOK, resp)
}

// Refresh performs a refresh_token grant with the stored pair.
func (h *Handler) Refresh(c *gin.Context) {
	ctx := requestContext(c)
	_, err := h.Tokens.Refresh(ctx)
	resp := gin.H{"message": "Token refreshed successfully"}
	if err != nil {
		if !errors.Is(err, etsy.ErrPersistFailed) {
			writeError(c, err)
			return
		}
		logging.FromContext(ctx).Errorf("refreshed tokens not saved: %v", err)
		resp["warning"] = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}
