package davcloak

import (
	"fmt"
	"testing"
	"time"

	"github.com/scraperwall/davcloak/data"
)

func TestRecentVerdicts(t *testing.T) {
	rv := NewRecentVerdicts(100, time.Hour)

	for i := 0; i < 130; i++ {
		rv.Add(&data.VerdictMessage{
			ID:        fmt.Sprintf("%d", i),
			IP:        "192.0.2.1",
			UserAgent: "test/1.0",
			Path:      fmt.Sprintf("/index/%d", i),
			Time:      time.Now(),
		})
	}

	if rv.Len() != 100 {
		t.Errorf("RecentVerdicts should contain exactly 100 elements but has %d", rv.Len())
	}

	verdicts := rv.Verdicts()
	if verdicts[0].ID != "129" || verdicts[99].ID != "30" {
		t.Errorf("expected verdicts 129 to 30, newest first, got %s to %s", verdicts[0].ID, verdicts[99].ID)
	}
}

func TestRecentVerdictsExpire(t *testing.T) {
	rv := NewRecentVerdicts(100, 90*time.Second)

	now := time.Now()
	for i := 0; i < 10; i++ {
		rv.Add(&data.VerdictMessage{
			ID:   fmt.Sprintf("%d", i),
			Time: now.Add(time.Duration(i-5) * time.Minute),
		})
	}

	// verdicts 0 to 3 are two minutes old or older
	if left := rv.Expire(); left != 6 {
		t.Errorf("RecentVerdicts should contain 6 elements after expiry but has %d", left)
	}
}

func TestRecentVerdictsDisabled(t *testing.T) {
	rv := NewRecentVerdicts(0, time.Minute)
	rv.Add(&data.VerdictMessage{Time: time.Now()})

	if rv.Len() != 0 {
		t.Errorf("a window without capacity must stay empty, got %d", rv.Len())
	}
}
