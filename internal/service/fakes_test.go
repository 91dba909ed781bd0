package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Eursukkul/residence-booking/internal/models"
	"github.com/Eursukkul/residence-booking/internal/notify"
	"github.com/Eursukkul/residence-booking/internal/repository"
	"github.com/Eursukkul/residence-booking/pkg/payment"
	"gorm.io/gorm"
)

// memStore is an in-memory stand-in for PostgreSQL. Transactions are
// serialized and rolled back on error; CAS updates and the partial unique
// indexes behave like the real schema.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	nextID    uint
	listings  map[uint]models.Listing
	bookings  map[uint]models.Booking
	proposals map[uint][]models.DateProposal
	attempts  map[uint]models.PaymentAttempt
	codes     map[uint]models.HandoverCode
}

func newMemStore() *memStore {
	return &memStore{
		listings:  map[uint]models.Listing{},
		bookings:  map[uint]models.Booking{},
		proposals: map[uint][]models.DateProposal{},
		attempts:  map[uint]models.PaymentAttempt{},
		codes:     map[uint]models.HandoverCode{},
	}
}

func (m *memStore) id() uint {
	m.nextID++
	return m.nextID
}

type snapshot struct {
	nextID    uint
	bookings  map[uint]models.Booking
	proposals map[uint][]models.DateProposal
	attempts  map[uint]models.PaymentAttempt
	codes     map[uint]models.HandoverCode
}

func (m *memStore) snapshot() snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := snapshot{
		nextID:    m.nextID,
		bookings:  map[uint]models.Booking{},
		proposals: map[uint][]models.DateProposal{},
		attempts:  map[uint]models.PaymentAttempt{},
		codes:     map[uint]models.HandoverCode{},
	}
	for k, v := range m.bookings {
		s.bookings[k] = v
	}
	for k, v := range m.proposals {
		s.proposals[k] = append([]models.DateProposal(nil), v...)
	}
	for k, v := range m.attempts {
		s.attempts[k] = v
	}
	for k, v := range m.codes {
		s.codes[k] = v
	}
	return s
}

func (m *memStore) restore(s snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID = s.nextID
	m.bookings = s.bookings
	m.proposals = s.proposals
	m.attempts = s.attempts
	m.codes = s.codes
}

// Transactor

func (m *memStore) WithinTransaction(_ context.Context, fn func(tx *gorm.DB) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	snap := m.snapshot()
	if err := fn(nil); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

// ListingRepository

type memListings struct{ *memStore }

func (r memListings) FindByID(_ context.Context, _ *gorm.DB, id uint) (*models.Listing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.listings[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &l, nil
}

func (r memListings) Upsert(_ context.Context, l *models.Listing) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listings[l.ID] = *l
	return nil
}

// BookingRepository

type memBookings struct{ *memStore }

func (r memBookings) Create(_ context.Context, _ *gorm.DB, b *models.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b.ID = r.id()
	b.CreatedAt = time.Now()
	stored := *b
	stored.Listing = nil
	r.bookings[b.ID] = stored
	return nil
}

func (r memBookings) load(id uint) (*models.Booking, error) {
	b, ok := r.bookings[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	if l, ok := r.listings[b.ListingID]; ok {
		b.Listing = &l
	}
	b.DateProposals = append([]models.DateProposal(nil), r.proposals[id]...)
	return &b, nil
}

func (r memBookings) FindByID(_ context.Context, _ *gorm.DB, id uint) (*models.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load(id)
}

func (r memBookings) FindByIDForUpdate(_ context.Context, _ *gorm.DB, id uint) (*models.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load(id)
}

func (r memBookings) FindByCustomer(_ context.Context, customerID uint) ([]models.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Booking
	for id, b := range r.bookings {
		if b.CustomerID == customerID {
			full, _ := r.load(id)
			out = append(out, *full)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r memBookings) FindByOwner(_ context.Context, ownerID uint, status *models.BookingStatus) ([]models.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Booking
	for id, b := range r.bookings {
		if r.listings[b.ListingID].OwnerID != ownerID {
			continue
		}
		if status != nil && b.Status != *status {
			continue
		}
		full, _ := r.load(id)
		out = append(out, *full)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r memBookings) Transition(_ context.Context, _ *gorm.DB, id uint, from, to models.BookingStatus, fields map[string]any) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%s -> %s: %w", from, to, repository.ErrConflict)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok || b.Status != from {
		return repository.ErrConflict
	}
	b.Status = to
	applyBookingFields(&b, fields)
	r.bookings[id] = b
	return nil
}

func (r memBookings) UpdateFields(_ context.Context, _ *gorm.DB, id uint, status models.BookingStatus, fields map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok || b.Status != status {
		return repository.ErrConflict
	}
	applyBookingFields(&b, fields)
	r.bookings[id] = b
	return nil
}

func (r memBookings) HasOverlap(_ context.Context, _ *gorm.DB, listingID uint, start, end time.Time, excludeID uint) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, b := range r.bookings {
		if id == excludeID || b.ListingID != listingID || b.StartDate == nil || b.EndDate == nil {
			continue
		}
		blocking := false
		for _, s := range models.BlockingStatuses {
			if b.Status == s {
				blocking = true
			}
		}
		if blocking && b.StartDate.Before(end) && b.EndDate.After(start) {
			return true, nil
		}
	}
	return false, nil
}

func (r memBookings) ReplaceProposals(_ context.Context, _ *gorm.DB, bookingID uint, proposals []models.DateProposal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range proposals {
		proposals[i].BookingID = bookingID
		proposals[i].ID = r.id()
	}
	r.proposals[bookingID] = append([]models.DateProposal(nil), proposals...)
	return nil
}

func (r memBookings) FindOverdueAwaitingPayment(_ context.Context, cutoff time.Time, limit int) ([]models.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Booking
	for _, b := range r.bookings {
		if b.Status == models.StatusAwaitingPayment && b.AwaitingPaymentSince != nil && !b.AwaitingPaymentSince.After(cutoff) {
			out = append(out, b)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r memBookings) FindSettleable(_ context.Context, before time.Time, limit int) ([]models.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Booking
	for _, b := range r.bookings {
		if b.Status == models.StatusCheckedIn && b.CheckedInAt != nil && !b.CheckedInAt.After(before) {
			out = append(out, b)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func applyBookingFields(b *models.Booking, fields map[string]any) {
	for k, v := range fields {
		switch k {
		case "start_date":
			t := v.(time.Time)
			b.StartDate = &t
		case "end_date":
			t := v.(time.Time)
			b.EndDate = &t
		case "dates_diverge":
			b.DatesDiverge = v.(bool)
		case "owner_note":
			b.OwnerNote = v.(string)
		case "total_amount":
			b.TotalAmount = v.(int64)
		case "deposit_amount":
			b.DepositAmount = v.(int64)
		case "platform_commission":
			b.PlatformCommission = v.(int64)
		case "amount_to_pay":
			b.AmountToPay = v.(int64)
		case "escrow_amount":
			b.EscrowAmount = v.(int64)
		case "payout_amount":
			b.PayoutAmount = v.(int64)
		case "approved_at":
			t := v.(time.Time)
			b.ApprovedAt = &t
		case "rejected_at":
			t := v.(time.Time)
			b.RejectedAt = &t
		case "awaiting_payment_since":
			t := v.(time.Time)
			b.AwaitingPaymentSince = &t
		case "payment_reference":
			b.PaymentReference = v.(string)
		case "verified_at":
			t := v.(time.Time)
			b.VerifiedAt = &t
		case "checked_in_at":
			t := v.(time.Time)
			b.CheckedInAt = &t
		case "payout_status":
			b.PayoutStatus = v.(models.PayoutStatus)
		case "payout_reference":
			b.PayoutReference = v.(string)
		case "released_at":
			t := v.(time.Time)
			b.ReleasedAt = &t
		case "cancelled_at":
			t := v.(time.Time)
			b.CancelledAt = &t
		case "cancelled_by":
			u := v.(uint)
			b.CancelledBy = &u
		case "expired_at":
			t := v.(time.Time)
			b.ExpiredAt = &t
		default:
			panic("memStore: unknown booking column " + k)
		}
	}
}

// PaymentRepository

type memPayments struct{ *memStore }

func (r memPayments) Create(_ context.Context, _ *gorm.DB, a *models.PaymentAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.attempts {
		if existing.ProviderReference == a.ProviderReference {
			return gorm.ErrDuplicatedKey
		}
	}
	a.ID = r.id()
	r.attempts[a.ID] = *a
	return nil
}

func (r memPayments) byRef(ref string) (*models.PaymentAttempt, error) {
	for _, a := range r.attempts {
		if a.ProviderReference == ref {
			return &a, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r memPayments) FindByReference(_ context.Context, _ *gorm.DB, ref string) (*models.PaymentAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byRef(ref)
}

func (r memPayments) FindByReferenceForUpdate(_ context.Context, _ *gorm.DB, ref string) (*models.PaymentAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byRef(ref)
}

func (r memPayments) FindVerifiedByBooking(_ context.Context, _ *gorm.DB, bookingID uint) (*models.PaymentAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.attempts {
		if a.BookingID == bookingID && a.Status == models.AttemptVerified {
			return &a, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r memPayments) SetAuthorizationURL(_ context.Context, id uint, url string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := r.attempts[id]
	a.AuthorizationURL = url
	r.attempts[id] = a
	return nil
}

func (r memPayments) MarkVerified(_ context.Context, _ *gorm.DB, id uint, amount int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.attempts[id]
	if !ok || a.Status == models.AttemptVerified {
		return repository.ErrConflict
	}
	for _, other := range r.attempts {
		if other.BookingID == a.BookingID && other.Status == models.AttemptVerified {
			return gorm.ErrDuplicatedKey
		}
	}
	a.Status = models.AttemptVerified
	a.ConfirmedAmount = &amount
	a.VerifiedAt = &at
	r.attempts[id] = a
	return nil
}

func (r memPayments) MarkFailed(_ context.Context, _ *gorm.DB, id uint, reason string, amount *int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.attempts[id]
	if !ok || a.Status == models.AttemptVerified {
		return nil
	}
	a.Status = models.AttemptFailed
	a.FailureReason = reason
	if amount != nil {
		a.ConfirmedAmount = amount
	}
	r.attempts[id] = a
	return nil
}

// HandoverCodeRepository

type memCodes struct{ *memStore }

func (r memCodes) Create(_ context.Context, _ *gorm.DB, c *models.HandoverCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.codes {
		if existing.Status != models.CodeActive {
			continue
		}
		if existing.Code == c.Code || existing.BookingID == c.BookingID {
			return gorm.ErrDuplicatedKey
		}
	}
	c.ID = r.id()
	r.codes[c.ID] = *c
	return nil
}

func (r memCodes) SupersedeActive(_ context.Context, _ *gorm.DB, bookingID uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, c := range r.codes {
		if c.BookingID == bookingID && c.Status == models.CodeActive {
			c.Status = models.CodeSuperseded
			r.codes[id] = c
		}
	}
	return nil
}

func (r memCodes) FindActiveByBooking(_ context.Context, _ *gorm.DB, bookingID uint) (*models.HandoverCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.codes {
		if c.BookingID == bookingID && c.Status == models.CodeActive {
			return &c, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r memCodes) FindLatestByBooking(_ context.Context, _ *gorm.DB, bookingID uint) (*models.HandoverCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *models.HandoverCode
	for _, c := range r.codes {
		if c.BookingID != bookingID {
			continue
		}
		if latest == nil || c.ID > latest.ID {
			cp := c
			latest = &cp
		}
	}
	if latest == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return latest, nil
}

func (r memCodes) FindActiveByCode(_ context.Context, _ *gorm.DB, code string) (*models.HandoverCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.codes {
		if c.Code == code && c.Status == models.CodeActive {
			return &c, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r memCodes) LockActive(_ context.Context, _ *gorm.DB, id uint) (*models.HandoverCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.codes[id]
	if !ok || c.Status != models.CodeActive {
		return nil, gorm.ErrRecordNotFound
	}
	return &c, nil
}

func (r memCodes) ExistsExpiredCode(_ context.Context, _ *gorm.DB, code string, ownerID uint) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.codes {
		if c.Code != code || c.Status != models.CodeExpired {
			continue
		}
		b := r.bookings[c.BookingID]
		if l, ok := r.listings[b.ListingID]; ok && l.OwnerID == ownerID {
			return true, nil
		}
	}
	return false, nil
}

func (r memCodes) Consume(_ context.Context, _ *gorm.DB, id, ownerID uint, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.codes[id]
	if !ok || c.Status != models.CodeActive {
		return repository.ErrConflict
	}
	c.Status = models.CodeConsumed
	c.ConsumedAt = &at
	c.ConsumedBy = &ownerID
	r.codes[id] = c
	return nil
}

func (r memCodes) ExpireDue(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, c := range r.codes {
		if c.Status == models.CodeActive && !now.Before(c.ExpiresAt) {
			c.Status = models.CodeExpired
			r.codes[id] = c
			n++
		}
	}
	return n, nil
}

// collaborators

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *recordingNotifier) Notify(_ context.Context, ev notify.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func (n *recordingNotifier) types() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.events))
	for i, ev := range n.events {
		out[i] = ev.Type
	}
	return out
}

type mockGateway struct {
	mu          sync.Mutex
	initCalls   int
	verifyCalls int
	initFn      func(ctx context.Context, req payment.InitializeRequest) (*payment.Session, error)
	verifyFn    func(ctx context.Context, reference string) (*payment.Confirmation, error)
}

func (g *mockGateway) Initialize(ctx context.Context, req payment.InitializeRequest) (*payment.Session, error) {
	g.mu.Lock()
	g.initCalls++
	g.mu.Unlock()
	if g.initFn != nil {
		return g.initFn(ctx, req)
	}
	return &payment.Session{Reference: req.Reference, AuthorizationURL: "https://checkout.test/" + req.Reference}, nil
}

func (g *mockGateway) Verify(ctx context.Context, reference string) (*payment.Confirmation, error) {
	g.mu.Lock()
	g.verifyCalls++
	g.mu.Unlock()
	return g.verifyFn(ctx, reference)
}

type mockPayouts struct {
	calls      int
	transferFn func(ctx context.Context, req payment.TransferRequest) (string, error)
}

func (p *mockPayouts) Transfer(ctx context.Context, req payment.TransferRequest) (string, error) {
	p.calls++
	return p.transferFn(ctx, req)
}

type stubLimiter struct {
	mu    sync.Mutex
	allow bool
	keys  []string
}

func (l *stubLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.keys = append(l.keys, key)
	return l.allow, nil
}
