package storage

import (
	"context"
	"encoding/json"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/db"
	"github.com/bytedance/sonic"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"

	"djtunez-api/domain"
)

// Store provides access to the hierarchical document store backing the
// service. Paths it owns:
//
//	/events/{eventId}/queue/{reqId}    song requests (written here)
//	/events/{eventId}/history/{reqId}  played/skipped log (deleted here)
//	/users/{uid}/...                   profile, stripe linkage, event index
//	/djs/{djId}                        public DJ read model (read only)
//
// The client is a shared, long-lived, goroutine-safe handle; one Store is
// built at startup and reused for every request.
type Store struct {
	db *db.Client
}

// Config selects the database instance. CredentialsFile may be empty, in
// which case application-default credentials are used (emulator included).
type Config struct {
	ProjectID       string
	DatabaseURL     string
	CredentialsFile string
}

// New connects to the realtime database named by cfg.
func New(ctx context.Context, cfg Config) (*Store, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{
		ProjectID:   cfg.ProjectID,
		DatabaseURL: cfg.DatabaseURL,
	}, opts...)
	if err != nil {
		return nil, err
	}
	client, err := app.Database(ctx)
	if err != nil {
		return nil, err
	}
	return &Store{db: client}, nil
}

type eventNode struct {
	DJID           string   `json:"djId"`
	Name           string   `json:"name"`
	Venue          string   `json:"venue"`
	City           string   `json:"city"`
	StartDate      string   `json:"startDate"`
	EndDate        string   `json:"endDate"`
	StartTime      string   `json:"startTime"`
	EndTime        string   `json:"endTime"`
	Status         string   `json:"status"`
	Live           bool     `json:"live"`
	Genres         []string `json:"genres"`
	Tracks         []string `json:"tracks"`
	Price          float64  `json:"price"`
	Currency       string   `json:"currency"`
	CurrencySymbol string   `json:"currencySymbol"`
}

func (n eventNode) toDomain(id string) domain.Event {
	ev := domain.Event{
		ID:             id,
		DJID:           n.DJID,
		Name:           n.Name,
		Venue:          n.Venue,
		City:           n.City,
		StartDate:      n.StartDate,
		EndDate:        n.EndDate,
		StartTime:      n.StartTime,
		EndTime:        n.EndTime,
		Status:         domain.EventStatus(n.Status),
		Live:           n.Live,
		Genres:         n.Genres,
		Tracks:         n.Tracks,
		Price:          n.Price,
		Currency:       n.Currency,
		CurrencySymbol: n.CurrencySymbol,
	}
	if ev.Genres == nil {
		ev.Genres = []string{}
	}
	if ev.Tracks == nil {
		ev.Tracks = []string{}
	}
	return ev
}

type djNode struct {
	StageName      string  `json:"stageName"`
	Bio            string  `json:"bio"`
	Wallpaper      string  `json:"wallpaper"`
	Avatar         string  `json:"avatar"`
	Ratings        float64 `json:"ratings"`
	Price          float64 `json:"price"`
	Currency       string  `json:"currency"`
	CurrencySymbol string  `json:"currencySymbol"`
}

type profileNode struct {
	Price    float64 `json:"price"`
	Currency string  `json:"currency"`
}

type stripeNode struct {
	AccountID   string `json:"accountId"`
	IsOnboarded bool   `json:"isOnboarded"`
}

// getNode reads path into out. Returns domain.ErrNotFound for an absent node.
func (s *Store) getNode(ctx context.Context, path string, out any) error {
	var raw json.RawMessage
	if err := s.db.NewRef(path).Get(ctx, &raw); err != nil {
		return err
	}
	if nodeAbsent(raw) {
		return domain.ErrNotFound
	}
	return sonic.Unmarshal(raw, out)
}

func nodeAbsent(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

// FetchEvent reads /events/{id}. Absent node yields domain.ErrNotFound.
func (s *Store) FetchEvent(ctx context.Context, eventID string) (domain.Event, error) {
	var node eventNode
	if err := s.getNode(ctx, "events/"+eventID, &node); err != nil {
		return domain.Event{}, err
	}
	return node.toDomain(eventID), nil
}

// FetchDJ reads the public read model at /djs/{id}.
func (s *Store) FetchDJ(ctx context.Context, djID string) (domain.DJ, error) {
	var node djNode
	if err := s.getNode(ctx, "djs/"+djID, &node); err != nil {
		return domain.DJ{}, err
	}
	cover := node.Wallpaper
	if cover == "" {
		cover = node.Avatar
	}
	return domain.DJ{
		ID:             djID,
		StageName:      node.StageName,
		Bio:            node.Bio,
		Cover:          cover,
		Ratings:        node.Ratings,
		Price:          node.Price,
		Currency:       node.Currency,
		CurrencySymbol: node.CurrencySymbol,
	}, nil
}

// FetchLiveEvent returns the DJ's event currently flagged live. The live flag
// itself is maintained by DJ tooling; this is a read-only secondary-index
// lookup over /events.
func (s *Store) FetchLiveEvent(ctx context.Context, djID string) (domain.Event, error) {
	results, err := s.db.NewRef("events").
		OrderByChild("djId").
		EqualTo(djID).
		GetOrdered(ctx)
	if err != nil {
		return domain.Event{}, err
	}
	for _, r := range results {
		var node eventNode
		if err := r.Unmarshal(&node); err != nil {
			return domain.Event{}, err
		}
		if node.Live {
			return node.toDomain(r.Key()), nil
		}
	}
	return domain.Event{}, domain.ErrNotFound
}

// AppendToQueue writes a song request to the back of an event's queue and
// returns the store-generated entry key. The event must exist; an absent
// event yields domain.ErrNotFound and no write is performed.
//
// Position assignment is read-count-then-write with no transactional guard:
// the position equals the queue child count observed immediately before the
// push, so ordering is eventually monotonic rather than strictly unique.
// Two truly concurrent appends can observe the same count.
func (s *Store) AppendToQueue(ctx context.Context, eventID string, req domain.SongRequest) (string, error) {
	var ev map[string]any
	if err := s.db.NewRef("events/"+eventID).Get(ctx, &ev); err != nil {
		return "", err
	}
	if ev == nil {
		return "", domain.ErrNotFound
	}

	queueRef := s.db.NewRef("events/" + eventID + "/queue")
	var children map[string]any
	if err := queueRef.Get(ctx, &children); err != nil {
		return "", err
	}

	req.Status = domain.RequestPending
	req.Timestamp = time.Now().UnixMilli()
	req.Position = nextPosition(children)

	newRef, err := queueRef.Push(ctx, req)
	if err != nil {
		return "", err
	}
	return newRef.Key, nil
}

// nextPosition is the append-order hint for a new entry: the number of
// entries already in the queue, zero when the subtree is absent.
func nextPosition(children map[string]any) int {
	return len(children)
}

// FetchCheckoutProfile reads the canonical pricing and payment linkage for a
// DJ. Profile and stripe nodes are independent, so both reads run
// concurrently. An absent profile is domain.ErrNotFound; a missing linked
// account is reported through an empty AccountID, not an error.
func (s *Store) FetchCheckoutProfile(ctx context.Context, djID string) (domain.CheckoutProfile, error) {
	var (
		rawProfile json.RawMessage
		stripe     stripeNode
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.db.NewRef("users/"+djID+"/profile").Get(gctx, &rawProfile)
	})
	g.Go(func() error {
		return s.db.NewRef("users/"+djID+"/stripe").Get(gctx, &stripe)
	})
	if err := g.Wait(); err != nil {
		return domain.CheckoutProfile{}, err
	}
	if nodeAbsent(rawProfile) {
		return domain.CheckoutProfile{}, domain.ErrNotFound
	}
	var profile profileNode
	if err := sonic.Unmarshal(rawProfile, &profile); err != nil {
		return domain.CheckoutProfile{}, err
	}
	currency := profile.Currency
	if currency == "" {
		currency = "eur"
	}
	return domain.CheckoutProfile{
		Price:     profile.Price,
		Currency:  currency,
		AccountID: stripe.AccountID,
		Onboarded: stripe.IsOnboarded,
	}, nil
}

// SyncOnboarding locates the user whose stripe/accountId equals accountID and
// stores the provider's details-submitted flag. No matching user is a no-op:
// the account may belong to a different deployment sharing the provider.
func (s *Store) SyncOnboarding(ctx context.Context, accountID string, submitted bool) error {
	results, err := s.db.NewRef("users").
		OrderByChild("stripe/accountId").
		EqualTo(accountID).
		GetOrdered(ctx)
	if err != nil {
		return err
	}
	for _, r := range results {
		ref := s.db.NewRef("users/" + r.Key() + "/stripe/isOnboarded")
		if err := ref.Set(ctx, submitted); err != nil {
			return err
		}
	}
	return nil
}

// FetchAccountLinkage reads a user's payment-account id and owned event ids.
// The two reads have no ordering dependency and run concurrently. Used as the
// first step of account deletion, before anything is erased.
func (s *Store) FetchAccountLinkage(ctx context.Context, uid string) (string, []string, error) {
	var (
		stripe stripeNode
		events map[string]any
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.db.NewRef("users/"+uid+"/stripe").Get(gctx, &stripe)
	})
	g.Go(func() error {
		return s.db.NewRef("users/"+uid+"/events").Get(gctx, &events)
	})
	if err := g.Wait(); err != nil {
		return "", nil, err
	}
	ids := make([]string, 0, len(events))
	for id := range events {
		ids = append(ids, id)
	}
	return stripe.AccountID, ids, nil
}

// DeleteEventTree removes /events/{id} entirely, queue and history included.
func (s *Store) DeleteEventTree(ctx context.Context, eventID string) error {
	return s.db.NewRef("events/" + eventID).Delete(ctx)
}

// DeleteUserTree removes /users/{uid}: profile, stripe linkage, event index
// and all-time history.
func (s *Store) DeleteUserTree(ctx context.Context, uid string) error {
	return s.db.NewRef("users/" + uid).Delete(ctx)
}
