package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/nghiavohuynhdai/art-kids-api/api/web"
	"github.com/nghiavohuynhdai/art-kids-api/api/weberr"
	"github.com/nghiavohuynhdai/art-kids-api/config"
	"github.com/nghiavohuynhdai/art-kids-api/core/claims"
	"github.com/nghiavohuynhdai/art-kids-api/core/course"
	"github.com/nghiavohuynhdai/art-kids-api/core/customer"
	"github.com/nghiavohuynhdai/art-kids-api/database"
	"github.com/nghiavohuynhdai/art-kids-api/validate"
	"github.com/plutov/paypal/v4"
	"github.com/stripe/stripe-go/v74"
	stripecl "github.com/stripe/stripe-go/v74/client"
	"github.com/stripe/stripe-go/v74/webhook"
)

// OrderNew is the order-placement payload: the contact snapshot to freeze on
// the order plus the courses being bought. Prices come from the catalog at
// this moment, never from the client.
type OrderNew struct {
	CustomerInfo Customer  `json:"customerInfo"`
	Items        []ItemNew `json:"items" validate:"min=1,dive"`
}

type ItemNew struct {
	CourseID string `json:"courseId" validate:"required,uuid4"`
}

// TransitionReq names the target of one or both status tracks.
type TransitionReq struct {
	OrderStatus       *string `json:"orderStatus"`
	TransactionStatus *string `json:"transactionStatus"`
}

// toWebErr translates the order error taxonomy into HTTP responses. State
// machine and validation failures carry detail; concurrency and timeout
// failures stay opaque and just signal retry.
func toWebErr(err error) error {
	var (
		ite *IllegalTransitionError
		ve  *ValidationError
	)
	switch {
	case errors.As(err, &ve):
		return weberr.NewError(err, ve.Error(), http.StatusUnprocessableEntity, weberr.WithFields(ve.Fields))
	case errors.As(err, &ite):
		return weberr.NewError(err, ite.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, ErrNotFound):
		return weberr.NotFound(err)
	case errors.Is(err, ErrEmptyOrder),
		errors.Is(err, ErrImmutableOrder),
		errors.Is(err, ErrNoChange),
		errors.Is(err, ErrDuplicateItem),
		errors.Is(err, ErrItemNotFound):
		return weberr.NewError(err, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, ErrStaleOrder):
		return weberr.NewError(err, "the order changed while the request was in flight, please retry", http.StatusConflict)
	case errors.Is(err, database.ErrTimeout):
		return weberr.NewError(err, "the service is temporarily unavailable, please retry", http.StatusServiceUnavailable)
	}
	return err
}

func HandleCreate(db *sqlx.DB, store *Store) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		var dto OrderNew
		if err := web.Decode(w, r, &dto); err != nil {
			return weberr.BadRequest(fmt.Errorf("decoding order payload: %w", err))
		}

		if len(dto.Items) == 0 {
			return toWebErr(ErrEmptyOrder)
		}
		if fields := validate.Fields(dto); fields != nil {
			return toWebErr(&ValidationError{Fields: fields})
		}

		if _, err := customer.Fetch(ctx, db, clm.UserID); err != nil {
			if errors.Is(err, customer.ErrNotFound) {
				return weberr.NotFound(err)
			}
			return fmt.Errorf("resolving customer[%s]: %w", clm.UserID, err)
		}

		now := time.Now().UTC()
		items := make([]Item, 0, len(dto.Items))
		for _, it := range dto.Items {
			c, err := course.Fetch(ctx, db, it.CourseID)
			if err != nil {
				if errors.Is(err, course.ErrNotFound) {
					return weberr.NotFound(err, weberr.WithFields(map[string]interface{}{
						"courseId": it.CourseID,
					}))
				}
				return fmt.Errorf("resolving course[%s]: %w", it.CourseID, err)
			}
			items = append(items, Item{CourseID: c.ID, Price: c.Price, CreatedAt: now})
		}

		ord, err := New(clm.UserID, dto.CustomerInfo, items, Actor{UserID: clm.UserID, Role: clm.Role}, now)
		if err != nil {
			return toWebErr(err)
		}

		if err := store.Save(ctx, ord); err != nil {
			return toWebErr(fmt.Errorf("persisting order[%s]: %w", ord.ID, err))
		}

		return web.Respond(ctx, w, ord, http.StatusCreated)
	}
}

func HandleShow(store *Store) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		ord, err := fetchOwned(ctx, store, web.Param(r, "id"))
		if err != nil {
			return err
		}
		return web.Respond(ctx, w, ord, http.StatusOK)
	}
}

func HandleList(store *Store) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		page := web.QueryInt(r, "page", 1)
		limit := web.QueryInt(r, "limit", 20)

		customerID := clm.UserID
		if claims.IsStaff(ctx) {
			customerID = ""
		}

		pg, err := store.List(ctx, customerID, page, limit)
		if err != nil {
			return toWebErr(err)
		}
		return web.Respond(ctx, w, pg, http.StatusOK)
	}
}

func HandleTransition(store *Store) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		var req TransitionReq
		if err := web.Decode(w, r, &req); err != nil {
			return weberr.BadRequest(fmt.Errorf("decoding transition payload: %w", err))
		}

		var newStatus *Status
		if req.OrderStatus != nil {
			s := Status(*req.OrderStatus)
			if !s.Valid() {
				return weberr.NewError(fmt.Errorf("unknown orderStatus %q", *req.OrderStatus),
					fmt.Sprintf("unknown orderStatus %q", *req.OrderStatus), http.StatusUnprocessableEntity)
			}
			newStatus = &s
		}
		var newTransaction *TransactionStatus
		if req.TransactionStatus != nil {
			t := TransactionStatus(*req.TransactionStatus)
			if !t.Valid() {
				return weberr.NewError(fmt.Errorf("unknown transactionStatus %q", *req.TransactionStatus),
					fmt.Sprintf("unknown transactionStatus %q", *req.TransactionStatus), http.StatusUnprocessableEntity)
			}
			newTransaction = &t
		}

		ord, err := fetchOwned(ctx, store, web.Param(r, "id"))
		if err != nil {
			return err
		}

		entry, err := ord.Transition(newStatus, newTransaction, Actor{UserID: clm.UserID, Role: clm.Role}, time.Now().UTC())
		if err != nil {
			return toWebErr(err)
		}

		if err := store.UpdateStatuses(ctx, &ord, entry); err != nil {
			return toWebErr(err)
		}
		return web.Respond(ctx, w, ord, http.StatusOK)
	}
}

// HandleCancel is the customer-facing way out: it cancels the caller's own
// order, subject to the same state machine as any other transition.
func HandleCancel(store *Store) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		ord, err := fetchOwned(ctx, store, web.Param(r, "id"))
		if err != nil {
			return err
		}

		cancelled := Cancelled
		entry, err := ord.Transition(&cancelled, nil, Actor{UserID: clm.UserID, Role: clm.Role}, time.Now().UTC())
		if err != nil {
			return toWebErr(err)
		}

		if err := store.UpdateStatuses(ctx, &ord, entry); err != nil {
			return toWebErr(err)
		}
		return web.Respond(ctx, w, ord, http.StatusOK)
	}
}

func HandleAddItem(db *sqlx.DB, store *Store) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var dto ItemNew
		if err := web.Decode(w, r, &dto); err != nil {
			return weberr.BadRequest(fmt.Errorf("decoding item payload: %w", err))
		}
		if fields := validate.Fields(dto); fields != nil {
			return toWebErr(&ValidationError{Fields: fields})
		}

		ord, err := fetchOwned(ctx, store, web.Param(r, "id"))
		if err != nil {
			return err
		}

		c, err := course.Fetch(ctx, db, dto.CourseID)
		if err != nil {
			if errors.Is(err, course.ErrNotFound) {
				return weberr.NotFound(err)
			}
			return fmt.Errorf("resolving course[%s]: %w", dto.CourseID, err)
		}

		now := time.Now().UTC()
		if err := ord.AddItem(Item{CourseID: c.ID, Price: c.Price, CreatedAt: now}, now); err != nil {
			return toWebErr(err)
		}

		if err := store.UpdateItems(ctx, &ord); err != nil {
			return toWebErr(err)
		}
		return web.Respond(ctx, w, ord, http.StatusOK)
	}
}

func HandleRemoveItem(store *Store) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		ord, err := fetchOwned(ctx, store, web.Param(r, "id"))
		if err != nil {
			return err
		}

		if err := ord.RemoveItem(web.Param(r, "course_id"), time.Now().UTC()); err != nil {
			return toWebErr(err)
		}

		if err := store.UpdateItems(ctx, &ord); err != nil {
			return toWebErr(err)
		}
		return web.Respond(ctx, w, ord, http.StatusOK)
	}
}

func HandlePaypalCheckout(db *sqlx.DB, store *Store, pp *paypal.Client) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		ord, err := fetchOwned(ctx, store, web.Param(r, "id"))
		if err != nil {
			return err
		}

		items := make([]paypal.Item, 0, len(ord.Items))
		for _, it := range ord.Items {
			c, err := course.Fetch(ctx, db, it.CourseID)
			if err != nil {
				return fmt.Errorf("resolving course[%s]: %w", it.CourseID, err)
			}

			items = append(items, paypal.Item{
				Quantity:    "1",
				Name:        c.Name,
				Description: c.Description,

				UnitAmount: &paypal.Money{
					Currency: "USD",
					Value:    dollars(it.Price),
				},
			})
		}

		units := []paypal.PurchaseUnitRequest{{
			Items: items,

			Amount: &paypal.PurchaseUnitAmount{
				Currency: "USD",
				Value:    dollars(ord.TotalAmount),

				Breakdown: &paypal.PurchaseUnitAmountBreakdown{ItemTotal: &paypal.Money{
					Currency: "USD",
					Value:    dollars(ord.TotalAmount),
				}},
			},
		}}

		ppOrd, err := pp.CreateOrder(ctx, "CAPTURE", units, nil, &paypal.ApplicationContext{})
		if err != nil {
			return fmt.Errorf("creating paypal order: %w", err)
		}

		pay := Payment{Provider: "paypal", Ref: ppOrd.ID, Amount: ord.TotalAmount, Currency: "USD"}
		entry, err := ord.AttachPayment(pay, Actor{UserID: clm.UserID, Role: clm.Role}, time.Now().UTC())
		if err != nil {
			return toWebErr(err)
		}

		if err := store.UpdateStatuses(ctx, &ord, entry); err != nil {
			return toWebErr(err)
		}
		return web.Respond(ctx, w, ppOrd, http.StatusOK)
	}
}

func HandlePaypalCapture(store *Store, pp *paypal.Client) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		ref := web.Param(r, "id")

		resp, err := pp.CaptureOrder(ctx, ref, paypal.CaptureOrderRequest{})
		if err != nil {
			return fmt.Errorf("capturing paypal order[%s]: %w", ref, err)
		}

		if resp.Status != "COMPLETED" {
			return fmt.Errorf("captured order[%s] with status[%s] different from 'COMPLETED'", ref, resp.Status)
		}

		if err := capture(ctx, store, ref, Actor{UserID: clm.UserID, Role: clm.Role}); err != nil {
			return err
		}
		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}
}

func HandleStripeCheckout(db *sqlx.DB, store *Store, strp *stripecl.API, cfg config.Stripe) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		ord, err := fetchOwned(ctx, store, web.Param(r, "id"))
		if err != nil {
			return err
		}

		li := make([]*stripe.CheckoutSessionLineItemParams, 0, len(ord.Items))
		for _, it := range ord.Items {
			c, err := course.Fetch(ctx, db, it.CourseID)
			if err != nil {
				return fmt.Errorf("resolving course[%s]: %w", it.CourseID, err)
			}

			li = append(li, &stripe.CheckoutSessionLineItemParams{
				Quantity: stripe.Int64(1),

				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:    stripe.String("usd"),
					TaxBehavior: stripe.String("inclusive"),
					UnitAmount:  stripe.Int64(it.Price),

					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripe.String(c.Name),
						Description: stripe.String(c.Description),
					},
				},
			})
		}

		params := &stripe.CheckoutSessionParams{
			SuccessURL: stripe.String(cfg.SuccessURL),
			CancelURL:  stripe.String(cfg.CancelURL),
			Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
			LineItems:  li,
		}

		s, err := strp.CheckoutSessions.New(params)
		if err != nil {
			return fmt.Errorf("creating stripe session: %w", err)
		}

		pay := Payment{Provider: "stripe", Ref: s.ID, Amount: ord.TotalAmount, Currency: "USD"}
		entry, err := ord.AttachPayment(pay, Actor{UserID: clm.UserID, Role: clm.Role}, time.Now().UTC())
		if err != nil {
			return toWebErr(err)
		}

		if err := store.UpdateStatuses(ctx, &ord, entry); err != nil {
			return toWebErr(err)
		}
		return web.Respond(ctx, w, s.URL, http.StatusOK)
	}
}

func HandleStripeCapture(store *Store, cfg config.Stripe) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		b, err := io.ReadAll(r.Body)
		if err != nil {
			return weberr.BadRequest(fmt.Errorf("cannot read the request body: %w", err))
		}

		sig := r.Header.Get("Stripe-Signature")
		if sig == "" {
			return weberr.BadRequest(errors.New("received stripe event is not signed"))
		}

		event, err := webhook.ConstructEvent(b, sig, cfg.WebhookSecret)
		if err != nil {
			return weberr.BadRequest(fmt.Errorf("cannot construct stripe event: %w", err))
		}

		if event.Type != "checkout.session.completed" {
			return web.Respond(ctx, w, nil, http.StatusNoContent)
		}

		var session stripe.CheckoutSession
		if err = json.Unmarshal(event.Data.Raw, &session); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode stripe event: %w", err))
		}

		if session.Mode != stripe.CheckoutSessionModePayment {
			return web.Respond(ctx, w, nil, http.StatusNoContent)
		}

		if err := capture(ctx, store, session.ID, WebhookActor); err != nil {
			return err
		}
		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}
}

// capture moves the payment track to CAPTURED and, when fulfillment has not
// started yet, confirms the order in the same transition.
func capture(ctx context.Context, store *Store, ref string, actor Actor) error {
	ord, err := store.FetchByPaymentRef(ctx, ref)
	if err != nil {
		return toWebErr(fmt.Errorf("fetching the order bound to payment[%s]: %w", ref, err))
	}

	// Gateways redeliver capture callbacks until they see a 2xx; an order
	// whose payment already settled is a success, not a conflict.
	if ord.TransactionStatus == Captured {
		return nil
	}

	captured := Captured
	var newStatus *Status
	if ord.OrderStatus == Pending {
		confirmed := Confirmed
		newStatus = &confirmed
	}

	entry, err := ord.Transition(newStatus, &captured, actor, time.Now().UTC())
	if err != nil {
		return toWebErr(err)
	}

	if err := store.UpdateStatuses(ctx, &ord, entry); err != nil {
		return toWebErr(fmt.Errorf("fulfilling order[%s] bound to payment[%s]: %w", ord.ID, ref, err))
	}
	return nil
}

// fetchOwned loads an order and hides it from customers who do not own it.
func fetchOwned(ctx context.Context, store *Store, id string) (Order, error) {
	if _, err := claims.Get(ctx); err != nil {
		return Order{}, weberr.NotAuthorized(errors.New("user not authenticated"))
	}
	if err := validate.CheckID(id); err != nil {
		return Order{}, weberr.BadRequest(err)
	}

	ord, err := store.Fetch(ctx, id)
	if err != nil {
		return Order{}, toWebErr(err)
	}

	if !claims.IsStaff(ctx) && !claims.IsUser(ctx, ord.CustomerID) {
		return Order{}, weberr.NotFound(errors.New("order does not belong to the caller"))
	}
	return ord, nil
}

// dollars renders integer cents as the decimal string paypal expects.
func dollars(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}
