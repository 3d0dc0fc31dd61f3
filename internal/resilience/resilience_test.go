package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/listenproof/internal/resilience"
	. "github.com/smartystreets/goconvey/convey"
)

type tempErr struct {
	after time.Duration
}

func (tempErr) Error() string               { return "temporary" }
func (tempErr) Temporary() bool             { return true }
func (e tempErr) RetryAfter() time.Duration { return e.after }

var errPermanent = errors.New("permanent")

func fastPolicy(attempts int) resilience.Policy {
	return resilience.Policy{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond, Multiplier: 2}
}

func TestPolicyDelay(t *testing.T) {
	Convey("Given the default policy", t, func() {
		p := resilience.DefaultPolicy()

		Convey("Then delays grow exponentially and are capped", func() {
			So(p.Delay(0), ShouldEqual, 0)
			So(p.Delay(1), ShouldEqual, 500*time.Millisecond)
			So(p.Delay(2), ShouldEqual, time.Second)
			So(p.Delay(3), ShouldEqual, 2*time.Second)
			So(p.Delay(10), ShouldEqual, p.MaxDelay)
			So(p.Delay(10_000), ShouldEqual, p.MaxDelay)
		})
	})

	Convey("Given a zero policy", t, func() {
		p := resilience.Policy{}.Normalize()

		Convey("Then defaults are filled in", func() {
			So(p, ShouldResemble, resilience.DefaultPolicy())
		})
	})

	Convey("Given a policy that only sets the attempt count", t, func() {
		p := resilience.Policy{MaxAttempts: 3}.Normalize()

		Convey("Then the default ceiling applies and delays still grow", func() {
			So(p.MaxAttempts, ShouldEqual, 3)
			So(p.MaxDelay, ShouldEqual, resilience.DefaultPolicy().MaxDelay)
			So(p.Delay(2), ShouldBeGreaterThan, p.Delay(1))
			So(p.Delay(3), ShouldBeGreaterThan, p.Delay(2))
		})
	})

	Convey("Given a ceiling below the base delay", t, func() {
		p := resilience.Policy{BaseDelay: time.Second, MaxDelay: time.Millisecond}.Normalize()

		Convey("Then the ceiling is raised to the base delay", func() {
			So(p.MaxDelay, ShouldEqual, time.Second)
			So(p.Delay(4), ShouldEqual, time.Second)
		})
	})
}

func TestCaller(t *testing.T) {
	ctx := context.Background()

	Convey("Given a caller with three attempts", t, func() {
		c := resilience.NewCaller("test", fastPolicy(3))

		Convey("When the operation succeeds after a transient failure", func() {
			calls := 0
			err := c.Call(ctx, func(context.Context) error {
				calls++
				if calls == 1 {
					return tempErr{}
				}
				return nil
			})

			Convey("Then it returns nil after two calls", func() {
				So(err, ShouldBeNil)
				So(calls, ShouldEqual, 2)
			})
		})

		Convey("When the operation always fails transiently", func() {
			calls := 0
			err := c.Call(ctx, func(context.Context) error {
				calls++
				return tempErr{after: time.Millisecond}
			})

			Convey("Then it stops at the attempt ceiling", func() {
				So(calls, ShouldEqual, 3)
				So(errors.Is(err, resilience.ErrExhausted), ShouldBeTrue)
				So(resilience.IsTransient(err), ShouldBeTrue)
			})
		})

		Convey("When the operation fails permanently", func() {
			calls := 0
			err := c.Call(ctx, func(context.Context) error {
				calls++
				return errPermanent
			})

			Convey("Then it is not retried", func() {
				So(calls, ShouldEqual, 1)
				So(errors.Is(err, errPermanent), ShouldBeTrue)
				So(errors.Is(err, resilience.ErrExhausted), ShouldBeFalse)
			})
		})

		Convey("When the context is cancelled while waiting", func() {
			slow := resilience.NewCaller("slow", resilience.Policy{MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: time.Second, Multiplier: 1})
			cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
			defer cancel()
			err := slow.Call(cctx, func(context.Context) error { return tempErr{} })

			Convey("Then the context error is returned", func() {
				So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
			})
		})
	})
}
