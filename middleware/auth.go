package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cppla/sharedrop/utils"
)

// AdminSecretHeader carries the plaintext admin secret.
const AdminSecretHeader = "X-Admin-Secret"

// AdminSecretRequired guards operator endpoints with a shared secret checked
// against a bcrypt hash. With no hash configured every request is refused.
func AdminSecretRequired(secretHash string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if secretHash == "" {
			utils.Error(ctx, http.StatusForbidden, 40301, "admin endpoints disabled")
			ctx.Abort()
			return
		}

		secret := strings.TrimSpace(ctx.GetHeader(AdminSecretHeader))
		if secret == "" {
			utils.Error(ctx, http.StatusUnauthorized, 40101, "admin secret missing")
			ctx.Abort()
			return
		}

		if !utils.CheckSecret(secretHash, secret) {
			utils.Error(ctx, http.StatusUnauthorized, 40102, "invalid admin secret")
			ctx.Abort()
			return
		}

		ctx.Next()
	}
}
