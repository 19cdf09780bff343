package metrics

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"github.com/prohmpiriya/slot-booking/pkg/telemetry"
)

var (
	// Hold counters
	HoldsCreated  *telemetry.Counter
	HoldsRejected *telemetry.Counter
	HoldsReleased *telemetry.Counter

	// Booking counters
	BookingsFinalized *telemetry.Counter
	BookingsCancelled *telemetry.Counter
	BookingsNoShow    *telemetry.Counter

	// Finalization counters
	FinalizationDuplicates *telemetry.Counter
	FinalizationFailures   *telemetry.Counter
	DeadLettered           *telemetry.Counter
	Redelivered            *telemetry.Counter

	// Histograms
	HoldToBookingDuration *telemetry.Histogram
	FinalizationDuration  *telemetry.Histogram

	// Gauges
	ActiveHolds *telemetry.UpDownCounter

	initOnce sync.Once
	initErr  error
)

// Init initializes all booking metrics
func Init() error {
	initOnce.Do(func() {
		initErr = initMetrics()
	})
	return initErr
}

func initMetrics() error {
	var err error

	HoldsCreated, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "slot_holds_created_total",
		Description: "Total number of temporary holds created",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	HoldsRejected, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "slot_holds_rejected_total",
		Description: "Total number of holds rejected by reason",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	HoldsReleased, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "slot_holds_released_total",
		Description: "Total number of holds released before expiry",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	BookingsFinalized, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "slot_bookings_finalized_total",
		Description: "Total number of holds converted into bookings",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	BookingsCancelled, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "slot_bookings_cancelled_total",
		Description: "Total number of cancelled bookings",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	BookingsNoShow, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "slot_bookings_no_show_total",
		Description: "Total number of bookings marked as no-show",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	FinalizationDuplicates, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "payment_finalization_duplicates_total",
		Description: "Total number of payment signals absorbed as duplicates",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	FinalizationFailures, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "payment_finalization_failures_total",
		Description: "Total number of failed finalization attempts",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	DeadLettered, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "payment_finalization_dead_lettered_total",
		Description: "Total number of payment signals sent to the dead letter topic",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	Redelivered, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "payment_finalization_redelivered_total",
		Description: "Total number of payment signals scheduled for redelivery",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	HoldToBookingDuration, err = telemetry.NewHistogramWithBuckets(telemetry.MetricOpts{
		Name:        "slot_hold_to_booking_duration_seconds",
		Description: "Duration from hold creation to finalized booking",
		Unit:        "s",
	}, []float64{1, 5, 10, 30, 60, 120, 300, 600}) // 1s to the default hold TTL
	if err != nil {
		return err
	}

	FinalizationDuration, err = telemetry.NewHistogramWithBuckets(telemetry.MetricOpts{
		Name:        "payment_finalization_duration_seconds",
		Description: "Duration of one finalization run",
		Unit:        "s",
	}, []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5})
	if err != nil {
		return err
	}

	ActiveHolds, err = telemetry.NewUpDownCounter(telemetry.MetricOpts{
		Name:        "slot_active_holds",
		Description: "Approximate number of live holds",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	return nil
}

// RecordHold records a created hold
func RecordHold(ctx context.Context, slotID string) {
	if HoldsCreated != nil {
		HoldsCreated.Inc(ctx, attribute.String("slot_id", slotID))
	}
	if ActiveHolds != nil {
		ActiveHolds.Add(ctx, 1)
	}
}

// RecordHoldRejected records a hold refused for reason
func RecordHoldRejected(ctx context.Context, slotID, reason string) {
	if HoldsRejected != nil {
		HoldsRejected.Inc(ctx,
			attribute.String("slot_id", slotID),
			attribute.String("reason", reason),
		)
	}
}

// RecordHoldReleased records a hold removed by its holder
func RecordHoldReleased(ctx context.Context, slotID string) {
	if HoldsReleased != nil {
		HoldsReleased.Inc(ctx, attribute.String("slot_id", slotID))
	}
	if ActiveHolds != nil {
		ActiveHolds.Add(ctx, -1)
	}
}

// RecordFinalized records a hold converted into a booking
func RecordFinalized(ctx context.Context, slotID string, holdAgeSeconds, durationSeconds float64) {
	if BookingsFinalized != nil {
		BookingsFinalized.Inc(ctx, attribute.String("slot_id", slotID))
	}
	if HoldToBookingDuration != nil && holdAgeSeconds > 0 {
		HoldToBookingDuration.Record(ctx, holdAgeSeconds)
	}
	if FinalizationDuration != nil {
		FinalizationDuration.Record(ctx, durationSeconds, attribute.String("outcome", "finalized"))
	}
	if ActiveHolds != nil {
		ActiveHolds.Add(ctx, -1)
	}
}

// RecordDuplicate records a payment signal absorbed by the marker
func RecordDuplicate(ctx context.Context) {
	if FinalizationDuplicates != nil {
		FinalizationDuplicates.Inc(ctx)
	}
}

// RecordFinalizationFailure records a failed finalization run
func RecordFinalizationFailure(ctx context.Context, step string) {
	if FinalizationFailures != nil {
		FinalizationFailures.Inc(ctx, attribute.String("step", step))
	}
}

// RecordDeadLettered records a payment signal sent to the DLQ
func RecordDeadLettered(ctx context.Context, reason string) {
	if DeadLettered != nil {
		DeadLettered.Inc(ctx, attribute.String("reason", reason))
	}
}

// RecordRedelivered records a payment signal re-produced for another attempt
func RecordRedelivered(ctx context.Context, attempt int) {
	if Redelivered != nil {
		Redelivered.Inc(ctx, attribute.Int("attempt", attempt))
	}
}

// RecordCancellation records a cancelled booking
func RecordCancellation(ctx context.Context, offeringID string, released bool) {
	if BookingsCancelled != nil {
		BookingsCancelled.Inc(ctx,
			attribute.String("offering_id", offeringID),
			attribute.Bool("capacity_released", released),
		)
	}
}

// RecordNoShow records a booking marked as no-show
func RecordNoShow(ctx context.Context, offeringID string) {
	if BookingsNoShow != nil {
		BookingsNoShow.Inc(ctx, attribute.String("offering_id", offeringID))
	}
}
