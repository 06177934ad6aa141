package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ebooklister/ebooklister/internal/auth/etsy"
	log "github.com/sirupsen/logrus"
)

// DoRefresh exchanges the stored refresh token for a new access token.
func DoRefresh(ctx context.Context, svc *Services) error {
	pair, err := svc.Tokens.Refresh(ctx)
	if err != nil && !errors.Is(err, etsy.ErrPersistFailed) {
		return err
	}
	if err != nil {
		log.Warnf("token refreshed but not saved: %v", err)
	}
	if pair.ExpiresAt.IsZero() {
		fmt.Println("Token refreshed successfully")
	} else {
		fmt.Printf("Token refreshed successfully, valid until %s\n", pair.ExpiresAt.Local().Format(time.RFC1123))
	}
	return nil
}
