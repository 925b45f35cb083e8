package rest

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/waifuarena/game/arena"
)

// statusOf maps an arena error kind to its HTTP status.
func statusOf(kind string) int {
	switch kind {
	case arena.KindInvalidParameter:
		return http.StatusBadRequest
	case arena.KindIncorrectPayment:
		return http.StatusPaymentRequired
	case arena.KindEntityNotFound:
		return http.StatusNotFound
	case arena.KindNotOwner, arena.KindNotAuthorized:
		return http.StatusForbidden
	case arena.KindCooldownActive:
		return http.StatusTooManyRequests
	case arena.KindTransferFailed:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// writeError renders err and returns the body it wrote so it can be audited.
// Internal errors are not echoed to the client.
func writeError(c *gin.Context, err error) gin.H {
	kind := arena.KindOf(err)
	body := gin.H{"error": err.Error(), "kind": kind}
	if kind == arena.KindInternal {
		body["error"] = "internal error"
	}

	var pe *arena.PaymentError
	if errors.As(err, &pe) {
		body["expected"] = pe.Expected.String()
		body["received"] = pe.Received.String()
		body["direction"] = pe.Direction()
	}
	var ce *arena.CooldownError
	if errors.As(err, &ce) {
		body["class"] = ce.Class.String()
		body["eligible_at"] = ce.EligibleAt
		wait := int64(1)
		if now := time.Now().Unix(); int64(ce.EligibleAt) > now {
			wait = int64(ce.EligibleAt) - now
		}
		c.Header("Retry-After", strconv.FormatInt(wait, 10))
	}

	c.JSON(statusOf(kind), body)
	return body
}

func badRequest(c *gin.Context, msg string) gin.H {
	body := gin.H{"error": msg, "kind": arena.KindInvalidParameter}
	c.JSON(http.StatusBadRequest, body)
	return body
}
