package quota_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/lexivox/internal/quota"
)

func TestMemoryStore_GrantsWithinLimit(t *testing.T) {
	t.Parallel()
	s := quota.NewMemoryStore(map[string]int64{"ocr": 3})

	for i := int64(1); i <= 3; i++ {
		d, err := s.CheckAndIncrement(t.Context(), "user:1", "ocr", 1)
		if err != nil {
			t.Fatal(err)
		}
		if !d.Allowed || d.Count != i || d.Limit != 3 {
			t.Fatalf("call %d: decision = %+v", i, d)
		}
	}

	d, err := s.CheckAndIncrement(t.Context(), "user:1", "ocr", 1)
	if err != nil {
		t.Fatal(err)
	}
	if d.Allowed {
		t.Fatal("fourth call should be denied")
	}
	if d.Count != 3 {
		t.Errorf("denied call changed the counter: %d", d.Count)
	}
}

func TestMemoryStore_ScopesAreIndependent(t *testing.T) {
	t.Parallel()
	s := quota.NewMemoryStore(map[string]int64{"ocr": 1})

	if d, _ := s.CheckAndIncrement(t.Context(), "user:1", "ocr", 1); !d.Allowed {
		t.Fatal("user:1 should be granted")
	}
	if d, _ := s.CheckAndIncrement(t.Context(), "user:2", "ocr", 1); !d.Allowed {
		t.Fatal("user:2 has its own counter")
	}
	if d, _ := s.CheckAndIncrement(t.Context(), "user:1", "ocr", 1); d.Allowed {
		t.Fatal("user:1 should be exhausted")
	}
}

func TestMemoryStore_UnlimitedResource(t *testing.T) {
	t.Parallel()
	s := quota.NewMemoryStore(map[string]int64{})

	for i := 0; i < 100; i++ {
		d, err := s.CheckAndIncrement(t.Context(), "user:1", "anything", 1000)
		if err != nil {
			t.Fatal(err)
		}
		if !d.Allowed {
			t.Fatal("unlimited resources must always be granted")
		}
	}
}

func TestMemoryStore_MultiUnitDenialLeavesRemainder(t *testing.T) {
	t.Parallel()
	s := quota.NewMemoryStore(map[string]int64{"translate_chars": 1000})

	if d, _ := s.CheckAndIncrement(t.Context(), "u", "translate_chars", 800); !d.Allowed {
		t.Fatal("first 800 chars should fit")
	}
	if d, _ := s.CheckAndIncrement(t.Context(), "u", "translate_chars", 300); d.Allowed {
		t.Fatal("300 more chars must not fit")
	}
	// The remainder is still spendable.
	if d, _ := s.CheckAndIncrement(t.Context(), "u", "translate_chars", 200); !d.Allowed {
		t.Fatal("remaining 200 chars should fit")
	}
}

func TestMemoryStore_DayRollover(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 8, 31, 23, 59, 0, 0, time.UTC)
	s := quota.NewMemoryStore(map[string]int64{"ocr": 1},
		quota.WithClock(func() time.Time { return now }))

	if d, _ := s.CheckAndIncrement(t.Context(), "u", "ocr", 1); !d.Allowed {
		t.Fatal("first call should be granted")
	}
	if d, _ := s.CheckAndIncrement(t.Context(), "u", "ocr", 1); d.Allowed {
		t.Fatal("limit reached for the day")
	}

	now = now.Add(2 * time.Minute) // past midnight UTC
	d, _ := s.CheckAndIncrement(t.Context(), "u", "ocr", 1)
	if !d.Allowed || d.Count != 1 {
		t.Fatalf("new day should start a fresh counter, got %+v", d)
	}
}

func TestMemoryStore_ConcurrentCallsNeverExceedLimit(t *testing.T) {
	t.Parallel()
	const limit = 50
	s := quota.NewMemoryStore(map[string]int64{"ocr": limit})

	var granted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := s.CheckAndIncrement(t.Context(), "guild:1", "ocr", 1)
			if err != nil {
				t.Error(err)
				return
			}
			if d.Allowed {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()

	if granted.Load() != limit {
		t.Fatalf("granted = %d, want exactly %d", granted.Load(), limit)
	}
}

func TestMemoryStore_Usage(t *testing.T) {
	t.Parallel()
	s := quota.NewMemoryStore(map[string]int64{"ocr": 2})

	s.CheckAndIncrement(t.Context(), "u", "ocr", 1)
	d, err := s.Usage(t.Context(), "u", "ocr")
	if err != nil {
		t.Fatal(err)
	}
	if d.Count != 1 || d.Limit != 2 || !d.Allowed {
		t.Errorf("usage = %+v", d)
	}
}
