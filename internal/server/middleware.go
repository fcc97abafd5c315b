package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/listingcraft/listingcraft/internal/accountctx"
)

// HeaderAccount carries the caller's account id. The edge proxy fills it in
// after authenticating the session token.
const HeaderAccount = "X-Account-ID"

func (s *Server) AccountContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderAccount))
		if raw == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		accountID, err := snowflake.ParseString(raw)
		if err != nil || accountID == 0 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := accountctx.WithAccountID(c.Request.Context(), accountID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func accountID(c *gin.Context) (snowflake.ID, bool) {
	return accountctx.AccountIDFromContext(c.Request.Context())
}
