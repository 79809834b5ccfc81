package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// deleteAccount cascade-deletes a DJ's account. The ordering is load-bearing:
//
//  1. read the payment linkage and owned-event index (parallel, nothing
//     erased yet)
//  2. close the connected payment account — failure here is logged and
//     swallowed, provider-side cleanup must not block local deletion
//  3. delete each owned /events/{id} tree (concurrent, order irrelevant)
//  4. delete the /users/{uid} tree
//  5. delete the identity record last, so steps 1-4 ran under a still-valid
//     credential
//
// The cascade is not atomic: a failure after step 2 leaves partial state and
// is surfaced as a 500 with no compensating rollback. The client must sign
// out locally once this succeeds.
func deleteAccount(store Storage, identity Identity, payments Payments, logger *log.Logger, timeout time.Duration) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := opContext(c, timeout)
		defer cancel()

		uid := sessionFromContext(c).UID
		if uid == "" {
			return jsonError(c, http.StatusUnauthorized, "Unauthorized")
		}

		accountID, eventIDs, err := store.FetchAccountLinkage(ctx, uid)
		if err != nil {
			c.Logger().Error(err)
			return jsonError(c, http.StatusInternalServerError, "Failed to delete account")
		}

		if accountID != "" {
			if err := payments.CloseAccount(ctx, accountID); err != nil {
				logger.WithFields(log.Fields{
					"uid":        uid,
					"account_id": accountID,
					"error":      err.Error(),
				}).Error("failed to close payment account, continuing deletion")
			}
		}

		g, gctx := errgroup.WithContext(ctx)
		for _, eventID := range eventIDs {
			g.Go(func() error {
				return store.DeleteEventTree(gctx, eventID)
			})
		}
		if err := g.Wait(); err != nil {
			c.Logger().Error(err)
			return jsonError(c, http.StatusInternalServerError, "Failed to delete account")
		}

		if err := store.DeleteUserTree(ctx, uid); err != nil {
			c.Logger().Error(err)
			return jsonError(c, http.StatusInternalServerError, "Failed to delete account")
		}

		if err := identity.DeleteUser(ctx, uid); err != nil {
			c.Logger().Error(err)
			return jsonError(c, http.StatusInternalServerError, "Failed to delete account")
		}

		return c.JSON(http.StatusOK, map[string]bool{"success": true})
	}
}
