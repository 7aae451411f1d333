package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// OperatorAudit writes one structured log line for every successful
// operator write under /internal.
func OperatorAudit(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Status() < 200 || c.Writer.Status() >= 300 {
			return
		}
		if c.Request.Method == "GET" || c.Request.Method == "HEAD" || c.Request.Method == "OPTIONS" {
			return
		}

		action, resource := mapPathToAction(c.FullPath(), c.Request.Method)
		if action == "" {
			return
		}

		event := log.Info().
			Str("action", action).
			Str("resource_type", resource).
			Str("path", c.Request.URL.Path).
			Str("client_ip", c.ClientIP()).
			Str("request_id", c.GetString(CtxRequestID))
		for _, p := range c.Params {
			event = event.Str("param_"+p.Key, p.Value)
		}
		event.Msg("operator action")
	}
}

// mapPathToAction works on the route template, not the concrete path.
func mapPathToAction(route, method string) (string, string) {
	route = strings.TrimSuffix(route, "/")
	switch {
	case route == "/internal/accounts" && method == "POST":
		return "open_account", "account"
	case route == "/internal/accounts/:id/deposits" && method == "POST":
		return "deposit", "transaction"
	case route == "/internal/accounts/:id/tokens" && method == "POST":
		return "issue_access_token", "account"
	case route == "/internal/assets/:key" && method == "PUT":
		return "upsert_asset", "asset"
	case route == "/internal/revenue/allocate" && method == "POST":
		return "allocate_revenue", "allocation"
	case route == "/internal/step-up-tokens" && method == "POST":
		return "issue_step_up", "step_up_token"
	}
	return "", ""
}
