package api

import (
	"errors"
	"io"
	"strconv"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"

	"governance-api/domain"
)

const (
	ctxActorKey   = "governance.actor"
	ctxMetricsKey = "governance.metrics"
)

// decodeBody reads a size-limited JSON body into v. Unknown fields are
// rejected; an empty body leaves v untouched.
func decodeBody(c echo.Context, v any) error {
	if c.Request().ContentLength == 0 {
		return nil
	}
	body := &countingReader{r: io.LimitReader(c.Request().Body, requestMaxSize)}
	dec := sonic.ConfigStd.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) && body.n == 0 {
			return nil
		}
		return errors.Join(errInvalidBody, err)
	}
	return nil
}

// countingReader counts the bytes read through it.
type countingReader struct {
	r io.Reader
	n int64
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	cr.n += int64(n)
	return n, err
}

// positionParam parses the :pos path parameter.
func positionParam(c echo.Context) (int, error) {
	pos, err := strconv.Atoi(c.Param("pos"))
	if err != nil || pos < 0 {
		return 0, errInvalidPos
	}
	return pos, nil
}

func actorFrom(c echo.Context) domain.Actor {
	actor, _ := c.Get(ctxActorKey).(domain.Actor)
	return actor
}

// metricsFrom returns the request metrics or nil; all metric methods accept a
// nil receiver.
func metricsFrom(c echo.Context) *requestMetrics {
	m, _ := c.Get(ctxMetricsKey).(*requestMetrics)
	return m
}

func writeJSON(c echo.Context, status int, v any) error {
	return metricsFrom(c).Time("encode", func() error { return c.JSON(status, v) })
}
