package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	c.UrgeRecorded()
	c.MoodLogged()
	c.ChatReply(ResultOK, time.Second)
	c.StoreSave(nil)
	c.HTTPRequest("GET", "/", 200)
	if c.Registry() != nil {
		t.Error("Registry() on nil collector should be nil")
	}
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 404 {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestCounters(t *testing.T) {
	c := NewCollector("nami")

	c.UrgeRecorded()
	c.UrgeRecorded()
	c.MoodLogged()
	c.StoreSave(nil)
	c.StoreSave(errors.New("disk full"))
	c.StoreSave(errors.New("disk full"))
	c.ChatReply(ResultFallback, 2*time.Second)

	if got := testutil.ToFloat64(c.UrgesRecorded); got != 2 {
		t.Errorf("urges = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.MoodsLogged); got != 1 {
		t.Errorf("moods = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.StoreSaves.WithLabelValues(ResultError)); got != 2 {
		t.Errorf("save errors = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.ChatReplies.WithLabelValues(ResultFallback)); got != 1 {
		t.Errorf("fallback replies = %v, want 1", got)
	}
}

func TestHandler(t *testing.T) {
	c := NewCollector("nami")
	c.UrgeRecorded()

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "nami_urges_recorded_total 1") {
		t.Errorf("metrics output missing counter:\n%s", body)
	}
}

func TestCollectorsAreIndependent(t *testing.T) {
	a := NewCollector("nami")
	b := NewCollector("nami")
	a.MoodLogged()
	if got := testutil.ToFloat64(b.MoodsLogged); got != 0 {
		t.Errorf("b moods = %v, want 0", got)
	}
}
