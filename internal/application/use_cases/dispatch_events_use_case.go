package use_cases

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"karte/internal/application/dto"
	portsin "karte/internal/application/ports/in"
	portsout "karte/internal/application/ports/out"
	"karte/internal/domain/entities"
	"karte/internal/domain/policies"
	apperrors "karte/internal/shared_kernel/errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultDispatchChunkSize = 10
	dispatchTracerName       = "karte.dispatch"
)

// TrackPipeline is the module side of a dispatch: request interception
// before sending and response fan-out after a successful send.
type TrackPipeline interface {
	Intercept(request dto.TrackRequest) dto.TrackRequest
	Receive(response dto.TrackResponse, request dto.TrackRequest)
}

type DispatchEventsSettings struct {
	TrackURL  string
	AppKey    string
	ChunkSize int
	Backoff   policies.RetryBackoff
	AppInfo   func() *dto.AppInfo
}

type DispatchEventsDependencies struct {
	Store        portsout.EventRecordStore
	Gateway      portsout.TrackGateway
	Pipeline     TrackPipeline
	Breaker      *policies.CircuitBreaker
	RateLimit    *policies.RateLimit
	Connectivity portsout.ConnectivityObserver
	Logger       *log.Logger
	Tracer       trace.Tracer
}

type dispatchEventsUseCase struct {
	store        portsout.EventRecordStore
	gateway      portsout.TrackGateway
	pipeline     TrackPipeline
	breaker      *policies.CircuitBreaker
	rateLimit    *policies.RateLimit
	connectivity portsout.ConnectivityObserver
	settings     DispatchEventsSettings
	logger       *log.Logger
	tracer       trace.Tracer
}

func NewDispatchEventsUseCase(deps DispatchEventsDependencies, settings DispatchEventsSettings) portsin.DispatchEventsUseCase {
	if settings.ChunkSize <= 0 {
		settings.ChunkSize = DefaultDispatchChunkSize
	}
	tracer := deps.Tracer
	if tracer == nil {
		tracer = otel.Tracer(dispatchTracerName)
	}
	breaker := deps.Breaker
	if breaker == nil {
		breaker = policies.NewCircuitBreaker(0, 0, nil)
	}
	return &dispatchEventsUseCase{
		store:        deps.Store,
		gateway:      deps.Gateway,
		pipeline:     deps.Pipeline,
		breaker:      breaker,
		rateLimit:    deps.RateLimit,
		connectivity: deps.Connectivity,
		settings:     settings,
		logger:       deps.Logger,
		tracer:       tracer,
	}
}

type dispatchGroup struct {
	key     entities.EventGroupKey
	records []entities.EventRecord
}

func (u *dispatchEventsUseCase) Execute(
	ctx context.Context,
	command dto.DispatchEventsCommand,
) (dto.DispatchEventsOutput, *apperrors.AppError) {
	if u.store == nil {
		return dto.DispatchEventsOutput{}, apperrors.NewInternal(
			"event_record_store_missing",
			"event record store is required",
			nil,
		)
	}
	if u.gateway == nil {
		return dto.DispatchEventsOutput{}, apperrors.NewInternal(
			"track_gateway_missing",
			"track gateway is required",
			nil,
		)
	}
	if strings.TrimSpace(u.settings.TrackURL) == "" {
		return dto.DispatchEventsOutput{}, apperrors.NewValidation(
			"dispatch_track_url_invalid",
			"dispatch track url is required",
			nil,
		)
	}

	startedAt := time.Now()
	if u.connectivity != nil && !u.connectivity.IsOnline() {
		return dto.DispatchEventsOutput{Skipped: dto.DispatchSkippedOffline}, nil
	}
	if u.rateLimit != nil && !u.rateLimit.CanRequest() {
		u.logf("dispatch cycle skipped reason=%s count=%d", dto.DispatchSkippedRateLimited, u.rateLimit.Count())
		return dto.DispatchEventsOutput{Skipped: dto.DispatchSkippedRateLimited}, nil
	}

	ctx, span := u.tracer.Start(ctx, "karte.dispatch.cycle")
	defer span.End()

	claimed, held, appErr := u.claim(ctx)
	if appErr != nil {
		span.RecordError(appErr)
		span.SetStatus(codes.Error, appErr.Code)
		return dto.DispatchEventsOutput{}, appErr
	}

	output := dto.DispatchEventsOutput{
		Claimed:  len(claimed),
		Held:     held,
		Outcomes: make([]dto.DispatchRecordOutcome, 0, len(claimed)),
	}
	if held > 0 {
		output.RetryAfter = u.breaker.RetryAfter()
	}

	minNextRetry := 0
	for _, group := range groupRecords(claimed) {
		for _, chunk := range chunkRecords(group.records, u.settings.ChunkSize) {
			nextRetry := u.dispatchChunk(ctx, command, group.key, chunk, &output)
			if nextRetry > 0 && (minNextRetry == 0 || nextRetry < minNextRetry) {
				minNextRetry = nextRetry
			}
		}
	}

	if minNextRetry > 0 {
		retryAfter := u.settings.Backoff.Interval(minNextRetry)
		if output.RetryAfter == 0 || retryAfter < output.RetryAfter {
			output.RetryAfter = retryAfter
		}
	}
	output.LatencyMS = time.Since(startedAt).Milliseconds()

	span.SetAttributes(
		attribute.Int("karte.dispatch.claimed", output.Claimed),
		attribute.Int("karte.dispatch.requests", output.Requests),
		attribute.Int("karte.dispatch.sent", output.Sent),
		attribute.Int("karte.dispatch.retried", output.Retried),
		attribute.Int("karte.dispatch.dropped", output.Dropped),
	)
	if output.SettleFailures > 0 {
		span.SetStatus(codes.Error, "settle_failed")
	}
	if output.Claimed > 0 || output.Held > 0 {
		u.logf(
			"dispatch cycle completed claimed=%d held=%d requests=%d sent=%d retried=%d dropped=%d settle_failures=%d http_2xx=%d http_4xx=%d http_5xx=%d network_errors=%d retry_after=%s latency_ms=%d",
			output.Claimed,
			output.Held,
			output.Requests,
			output.Sent,
			output.Retried,
			output.Dropped,
			output.SettleFailures,
			output.HTTP2xxCount,
			output.HTTP4xxCount,
			output.HTTP5xxCount,
			output.NetworkErrorCount,
			output.RetryAfter,
			output.LatencyMS,
		)
	}
	return output, nil
}

// claim marks every sendable record Requesting inside one transaction.
// Retried records stay Failed while the circuit breaker is open, and are
// filtered before the state change so they are never stranded.
func (u *dispatchEventsUseCase) claim(ctx context.Context) ([]entities.EventRecord, int, *apperrors.AppError) {
	canRetry := u.breaker.CanRequest()
	claimed := make([]entities.EventRecord, 0)
	held := 0

	appErr := u.store.Transaction(ctx, func(tx portsout.Persister[entities.EventRecord]) *apperrors.AppError {
		records, appErr := tx.Read(ctx, portsout.Unequal(portsout.EventRecordColumnState, entities.EventRecordStateRequesting))
		if appErr != nil {
			return appErr
		}
		for _, record := range records {
			if record.Retry > 0 && !canRetry {
				held++
				continue
			}
			record.State = entities.EventRecordStateRequesting
			if _, appErr := tx.Update(ctx, record); appErr != nil {
				return appErr
			}
			claimed = append(claimed, record)
		}
		return nil
	})
	if appErr != nil {
		return nil, 0, appErr
	}
	return claimed, held, nil
}

// dispatchChunk sends one request and settles its records. It returns the
// lowest retry number among the records it left queued, or zero. A store
// failure while settling stays local to the chunk: its records go back to
// Failed so a later cycle claims them again.
func (u *dispatchEventsUseCase) dispatchChunk(
	ctx context.Context,
	command dto.DispatchEventsCommand,
	key entities.EventGroupKey,
	records []entities.EventRecord,
	output *dto.DispatchEventsOutput,
) int {
	events := make([]entities.Event, 0, len(records))
	retryable := make(map[int64]bool, len(records))
	sendable := make([]entities.EventRecord, 0, len(records))
	minNextRetry := 0
	for _, record := range records {
		event, err := record.DecodeEvent()
		if err != nil {
			u.logf("dispatch record dropped record_id=%d reason=decode_failed error=%v", record.ID, err)
			if appErr := u.store.Delete(ctx, record); appErr != nil {
				u.settleFailed(ctx, appErr, output)
				u.release(ctx, []entities.EventRecord{record})
				minNextRetry = 1
				continue
			}
			output.Dropped++
			output.Outcomes = append(output.Outcomes, dto.DispatchRecordOutcome{RecordID: record.ID, Delivered: false})
			continue
		}
		event.IsRetry = key.Retried
		retryable[record.ID] = event.IsRetryable
		events = append(events, event)
		sendable = append(sendable, record)
	}
	if len(sendable) == 0 {
		return minNextRetry
	}

	request := dto.TrackRequest{
		URL:          u.settings.TrackURL,
		Headers:      map[string]string{dto.HeaderAppKey: u.settings.AppKey},
		VisitorID:    key.VisitorID,
		OriginalPvID: key.OriginalPvID,
		PvID:         key.PvID,
		Events:       events,
	}
	if u.settings.AppInfo != nil {
		request.AppInfo = u.settings.AppInfo()
	}
	if u.pipeline != nil {
		request = u.pipeline.Intercept(request)
	}

	output.Requests++
	if u.rateLimit != nil {
		u.rateLimit.Increment(len(sendable))
	}
	response, sendErr := u.send(ctx, request)
	if u.rateLimit != nil {
		u.rateLimit.DecrementWithDelay(len(sendable), command.OnBudgetRestored)
	}
	u.countResponse(response, sendErr, output)

	if sendErr == nil && response.IsSuccessful() {
		if !key.Retried && u.pipeline != nil {
			u.pipeline.Receive(response, request)
		}
		u.breaker.Reset()
		released := !u.settleDelivered(ctx, sendable, output)
		for _, record := range sendable {
			output.Outcomes = append(output.Outcomes, dto.DispatchRecordOutcome{RecordID: record.ID, Delivered: true})
		}
		if released {
			return 1
		}
		return 0
	}

	u.logSendFailure(request, response, sendErr)
	u.breaker.RecordFailure()
	return u.settleFailedSend(ctx, sendable, retryable, output)
}

// settleDelivered deletes delivered records. When the delete fails the
// events already reached the collector; the records are released and will
// be sent again, which delivery semantics allow. It reports whether the
// records were deleted.
func (u *dispatchEventsUseCase) settleDelivered(ctx context.Context, records []entities.EventRecord, output *dto.DispatchEventsOutput) bool {
	appErr := u.store.Transaction(ctx, func(tx portsout.Persister[entities.EventRecord]) *apperrors.AppError {
		for _, record := range records {
			if appErr := tx.Delete(ctx, record); appErr != nil {
				return appErr
			}
		}
		return nil
	})
	if appErr != nil {
		u.settleFailed(ctx, appErr, output)
		u.release(ctx, records)
		return false
	}
	output.Sent += len(records)
	return true
}

// settleFailedSend drops records out of retries and re-queues the rest as
// Failed with their next retry number.
func (u *dispatchEventsUseCase) settleFailedSend(
	ctx context.Context,
	records []entities.EventRecord,
	retryable map[int64]bool,
	output *dto.DispatchEventsOutput,
) int {
	appErr := u.store.Transaction(ctx, func(tx portsout.Persister[entities.EventRecord]) *apperrors.AppError {
		for _, record := range records {
			nextRetry := record.NextRetry()
			if entities.ShouldDrop(nextRetry, retryable[record.ID]) {
				if appErr := tx.Delete(ctx, record); appErr != nil {
					return appErr
				}
				continue
			}
			record.State = entities.EventRecordStateFailed
			record.Retry = nextRetry
			if _, appErr := tx.Update(ctx, record); appErr != nil {
				return appErr
			}
		}
		return nil
	})
	if appErr != nil {
		u.settleFailed(ctx, appErr, output)
		return u.settleFailedSendEach(ctx, records, retryable, output)
	}

	minNextRetry := 0
	for _, record := range records {
		nextRetry := record.NextRetry()
		if entities.ShouldDrop(nextRetry, retryable[record.ID]) {
			output.Dropped++
			output.Outcomes = append(output.Outcomes, dto.DispatchRecordOutcome{RecordID: record.ID, Delivered: false})
			continue
		}
		output.Retried++
		if minNextRetry == 0 || nextRetry < minNextRetry {
			minNextRetry = nextRetry
		}
	}
	return minNextRetry
}

// settleFailedSendEach is the fallback after a rolled back settlement: one
// statement per record, so a single bad row cannot strand the others.
// Records that cannot be deleted are released with their retry advanced,
// and the next failure drops them.
func (u *dispatchEventsUseCase) settleFailedSendEach(
	ctx context.Context,
	records []entities.EventRecord,
	retryable map[int64]bool,
	output *dto.DispatchEventsOutput,
) int {
	minNextRetry := 0
	for _, record := range records {
		nextRetry := record.NextRetry()
		if entities.ShouldDrop(nextRetry, retryable[record.ID]) {
			if appErr := u.store.Delete(ctx, record); appErr == nil {
				output.Dropped++
				output.Outcomes = append(output.Outcomes, dto.DispatchRecordOutcome{RecordID: record.ID, Delivered: false})
				continue
			}
		}
		record.Retry = nextRetry
		u.release(ctx, []entities.EventRecord{record})
		output.Retried++
		if minNextRetry == 0 || nextRetry < minNextRetry {
			minNextRetry = nextRetry
		}
	}
	return minNextRetry
}

// release returns records to Failed one update at a time, outside any
// transaction, so a later cycle claims them again. A record that cannot be
// released stays Requesting until the next process recovers it.
func (u *dispatchEventsUseCase) release(ctx context.Context, records []entities.EventRecord) {
	for _, record := range records {
		record.State = entities.EventRecordStateFailed
		if _, appErr := u.store.Update(ctx, record); appErr != nil {
			u.logf("dispatch record release failed record_id=%d code=%s message=%s", record.ID, appErr.Code, appErr.Message)
		}
	}
}

func (u *dispatchEventsUseCase) settleFailed(ctx context.Context, appErr *apperrors.AppError, output *dto.DispatchEventsOutput) {
	output.SettleFailures++
	trace.SpanFromContext(ctx).RecordError(appErr)
	u.logf("dispatch settle failed code=%s message=%s", appErr.Code, appErr.Message)
}

// send isolates the gateway: a panic inside it is reported as a failed
// request rather than unwinding the dispatch loop.
func (u *dispatchEventsUseCase) send(ctx context.Context, request dto.TrackRequest) (response dto.TrackResponse, appErr *apperrors.AppError) {
	ctx, span := u.tracer.Start(ctx, "karte.track.send", trace.WithAttributes(
		attribute.String("karte.track.url", request.URL),
		attribute.Int("karte.track.events", len(request.Events)),
		attribute.Bool("karte.track.retry", len(request.Events) > 0 && request.Events[0].IsRetry),
	))
	defer span.End()

	defer func() {
		if recovered := recover(); recovered != nil {
			response = dto.TrackResponse{}
			appErr = apperrors.NewInternal(
				"track_gateway_panicked",
				"track gateway panicked",
				map[string]any{"panic": fmt.Sprint(recovered)},
			)
		}
		if appErr != nil {
			span.RecordError(appErr)
			span.SetStatus(codes.Error, appErr.Code)
		}
		if response.StatusCode != 0 {
			span.SetAttributes(attribute.Int("http.response.status_code", response.StatusCode))
		}
	}()

	return u.gateway.Send(ctx, request)
}

func (u *dispatchEventsUseCase) countResponse(response dto.TrackResponse, sendErr *apperrors.AppError, output *dto.DispatchEventsOutput) {
	switch {
	case response.StatusCode >= 200 && response.StatusCode <= 299:
		output.HTTP2xxCount++
	case response.StatusCode >= 400 && response.StatusCode <= 499:
		output.HTTP4xxCount++
	case response.StatusCode >= 500 && response.StatusCode <= 599:
		output.HTTP5xxCount++
	case sendErr != nil:
		output.NetworkErrorCount++
	}
}

func (u *dispatchEventsUseCase) logSendFailure(request dto.TrackRequest, response dto.TrackResponse, sendErr *apperrors.AppError) {
	code := ""
	if sendErr != nil {
		code = sendErr.Code
	}
	if response.IsMaintenance() {
		u.logf("track endpoint under maintenance url=%s events=%d", request.URL, len(request.Events))
	}
	u.logf(
		"track request failed url=%s status=%d code=%s visitor_id=%s events=%d",
		request.URL,
		response.StatusCode,
		code,
		request.VisitorID,
		len(request.Events),
	)
}

func (u *dispatchEventsUseCase) logf(format string, args ...any) {
	if u == nil || u.logger == nil {
		return
	}
	u.logger.Printf(format, args...)
}

// groupRecords partitions records by identity and retry status, keeping
// first-seen group order and insertion order within each group.
func groupRecords(records []entities.EventRecord) []dispatchGroup {
	groups := make([]dispatchGroup, 0)
	index := map[entities.EventGroupKey]int{}
	for _, record := range records {
		key := record.GroupKey()
		position, exists := index[key]
		if !exists {
			position = len(groups)
			index[key] = position
			groups = append(groups, dispatchGroup{key: key})
		}
		groups[position].records = append(groups[position].records, record)
	}
	return groups
}

func chunkRecords(records []entities.EventRecord, size int) [][]entities.EventRecord {
	chunks := make([][]entities.EventRecord, 0, (len(records)+size-1)/size)
	for start := 0; start < len(records); start += size {
		end := start + size
		if end > len(records) {
			end = len(records)
		}
		chunks = append(chunks, records[start:end])
	}
	return chunks
}
