package middleware

// identity.go defines helpers for reading the authenticated identity out
// of the Echo context after JWTAuth has run.

import (
    "github.com/labstack/echo/v4"
)

// Executor returns the authenticated subject as a nullable string for
// recording on manually booked ledger transactions.  It returns nil for
// unauthenticated requests.
func Executor(c echo.Context) *string {
    if v, ok := c.Get("executor").(string); ok && v != "" {
        return &v
    }
    return nil
}
