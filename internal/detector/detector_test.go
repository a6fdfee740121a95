package detector

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestHandLandmarks_Label(t *testing.T) {
	tests := []struct {
		name string
		hand *HandLandmarks
		want string
	}{
		{name: "nil hand", hand: nil, want: HandRight},
		{name: "unreported", hand: &HandLandmarks{}, want: HandRight},
		{name: "left", hand: &HandLandmarks{Handedness: HandLeft}, want: HandLeft},
		{name: "right", hand: &HandLandmarks{Handedness: HandRight}, want: HandRight},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.hand.Label(); got != tt.want {
				t.Errorf("Label() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResult_First(t *testing.T) {
	t.Run("no hands", func(t *testing.T) {
		if _, ok := (Result{}).First(); ok {
			t.Error("expected no hand")
		}
	})

	t.Run("first of several", func(t *testing.T) {
		r := Result{Hands: []HandLandmarks{ThumbsUpLandmarks(), OpenPalmLandmarks()}}
		hand, ok := r.First()
		if !ok {
			t.Fatal("expected a hand")
		}
		if hand.Points[ThumbTip] != ThumbsUpLandmarks().Points[ThumbTip] {
			t.Error("expected the first hand to be returned")
		}
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "default", mutate: func(c *Config) {}},
		{name: "zero hands", mutate: func(c *Config) { c.MaxHands = 0 }, wantErr: true},
		{name: "complexity 2", mutate: func(c *Config) { c.ModelComplexity = 2 }, wantErr: true},
		{name: "detection above 1", mutate: func(c *Config) { c.MinDetectionConfidence = 1.5 }, wantErr: true},
		{name: "tracking negative", mutate: func(c *Config) { c.MinTrackingConfidence = -0.1 }, wantErr: true},
		{name: "lite model", mutate: func(c *Config) { c.ModelComplexity = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDefaultConfig_SingleHand(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.MaxHands != 1 {
		t.Errorf("MaxHands = %d, want 1", cfg.MaxHands)
	}
	if cfg.MinDetectionConfidence != 0.6 || cfg.MinTrackingConfidence != 0.5 {
		t.Errorf("unexpected thresholds: %+v", cfg)
	}
}

func TestMockDetector(t *testing.T) {
	t.Run("reports no hand by default", func(t *testing.T) {
		mock := NewMockDetector()

		var got []Result
		mock.OnResult(func(r Result) { got = append(got, r) })

		if err := mock.Submit(context.Background(), nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 1 {
			t.Fatalf("expected 1 result, got %d", len(got))
		}
		if _, ok := got[0].First(); ok {
			t.Error("expected no hand")
		}
	})

	t.Run("reports configured hands", func(t *testing.T) {
		mock := NewMockDetector()
		mock.SetHands(OpenPalmLandmarks())

		var got Result
		mock.OnResult(func(r Result) { got = r })

		if err := mock.Submit(context.Background(), nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got.Hands) != 1 {
			t.Errorf("expected 1 hand, got %d", len(got.Hands))
		}
	})

	t.Run("returns configured error without a result", func(t *testing.T) {
		mock := NewMockDetector()
		expectedErr := errors.New("detection failed")
		mock.SetError(expectedErr)

		called := false
		mock.OnResult(func(Result) { called = true })

		if err := mock.Submit(context.Background(), nil); err != expectedErr {
			t.Errorf("expected error %v, got %v", expectedErr, err)
		}
		if called {
			t.Error("callback should not run on error")
		}
		if mock.Submissions() != 1 {
			t.Errorf("Submissions() = %d, want 1", mock.Submissions())
		}
	})

	t.Run("cancelled context suppresses the callback", func(t *testing.T) {
		mock := NewMockDetector()
		called := false
		mock.OnResult(func(Result) { called = true })

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		mock.Submit(ctx, nil)

		if called {
			t.Error("callback should not run after cancellation")
		}
	})

	t.Run("rejects frames after Close", func(t *testing.T) {
		mock := NewMockDetector()
		if err := mock.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
		if err := mock.Submit(context.Background(), nil); !errors.Is(err, ErrClosed) {
			t.Errorf("expected ErrClosed, got %v", err)
		}
		if mock.Submissions() != 0 {
			t.Errorf("Submissions() = %d, want 0", mock.Submissions())
		}
	})

	t.Run("records configuration", func(t *testing.T) {
		mock := NewMockDetector()
		if err := mock.Configure(DefaultConfig()); err != nil {
			t.Fatalf("Configure() error = %v", err)
		}
		cfg, ok := mock.Config()
		if !ok || cfg != DefaultConfig() {
			t.Errorf("Config() = %+v, %v", cfg, ok)
		}
	})

	t.Run("implements PoseDetector interface", func(t *testing.T) {
		var _ PoseDetector = (*MockDetector)(nil)
		var _ PoseDetector = (*MediaPipeDetector)(nil)
	})
}

func TestPoseLandmarks_LeftMirrorsRight(t *testing.T) {
	extended := [5]bool{true, true, false, false, false}
	right := PoseLandmarks(HandRight, extended)
	left := PoseLandmarks(HandLeft, extended)

	for i := 0; i < NumLandmarks; i++ {
		if left.Points[i].Y != right.Points[i].Y {
			t.Errorf("landmark %d: Y differs", i)
		}
		if sum := left.Points[i].X + right.Points[i].X; sum < 0.999 || sum > 1.001 {
			t.Errorf("landmark %d: X not mirrored (%f + %f)", i, left.Points[i].X, right.Points[i].X)
		}
	}
}

func TestLoader_ResolvesOnce(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	loader := NewLoader(func(ctx context.Context) (Runtime, error) {
		calls.Add(1)
		<-release
		return Runtime{Python: "python3", Script: "service.py"}, nil
	})

	var wg sync.WaitGroup
	results := make([]Runtime, 8)
	errs := make([]error, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = loader.Load(context.Background())
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := range results {
		if errs[i] != nil {
			t.Fatalf("Load() #%d error = %v", i, errs[i])
		}
		if results[i].Script != "service.py" {
			t.Errorf("Load() #%d = %+v", i, results[i])
		}
	}

	if _, err := loader.Load(context.Background()); err != nil {
		t.Fatalf("cached Load() error = %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("resolver ran %d times, want 1", got)
	}
}

func TestLoader_FailureIsNotCached(t *testing.T) {
	fail := true
	loader := NewLoader(func(ctx context.Context) (Runtime, error) {
		if fail {
			return Runtime{}, errors.New("model download failed")
		}
		return Runtime{Script: "service.py"}, nil
	})

	if _, err := loader.Load(context.Background()); err == nil {
		t.Fatal("expected first load to fail")
	}

	fail = false
	rt, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("second Load() error = %v", err)
	}
	if rt.Script != "service.py" {
		t.Errorf("Load() = %+v", rt)
	}
	if loader.Attempts() != 2 {
		t.Errorf("Attempts() = %d, want 2", loader.Attempts())
	}
}

func TestLoader_CallerCancellation(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	loader := NewLoader(func(ctx context.Context) (Runtime, error) {
		<-release
		return Runtime{}, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := loader.Load(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}
