package test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"path"
	"testing"
	"time"

	"github.com/nghiavohuynhdai/art-kids-api/core/claims"
	"github.com/nghiavohuynhdai/art-kids-api/core/course"
	"github.com/nghiavohuynhdai/art-kids-api/core/order"
	"github.com/nghiavohuynhdai/art-kids-api/validate"
	"github.com/plutov/paypal/v4"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/webhook"
)

type orderTest struct {
	*TestEnv
}

func TestOrders(t *testing.T) {
	env, err := NewTestEnv(t, "order_test")
	if err != nil {
		t.Fatalf("initializing test env: %v", err)
	}
	ot := &orderTest{env}

	c1 := env.seedCourse(t, "Drawing Basics", 1000)
	c2 := env.seedCourse(t, "Watercolor", 550)
	c3 := env.seedCourse(t, "Clay Modeling", 200)

	ot.createOrderUnauthenticated(t)
	ot.createOrderEmpty(t)
	ot.createOrderBadSnapshot(t, c1)
	ot.createOrderBadCourse(t)

	ord := ot.createOrderOK(t, c1, c2)
	ot.showOrderHiddenFromStranger(t, ord.ID)
	ot.listOrdersOK(t, 1)

	ot.addItemOK(t, ord.ID, c3.ID, 1750)
	ot.removeItemOK(t, ord.ID, c3.ID, 1550)

	ot.transitionNeedsStaff(t, ord.ID)
	ot.transitionUnknownStatus(t, ord.ID)
	ot.transitionRejected(t, ord.ID, "SHIPPED") // nothing captured yet

	env.Paypal.expectedTotal = 1550
	env.Paypal.expectedItems = 2
	ref := ot.paypalCheckoutOK(t, ord.ID)

	ot.addItemLocked(t, ord.ID, c3.ID)
	ot.paypalCaptureOK(t, ref)
	ot.paypalCaptureOK(t, ref) // gateways retry captures; a settled one still succeeds

	ord = ot.showOrderOK(t, ord.ID)
	if ord.OrderStatus != order.Confirmed || ord.TransactionStatus != order.Captured {
		t.Fatalf("expected CONFIRMED/CAPTURED after capture, got %s/%s", ord.OrderStatus, ord.TransactionStatus)
	}
	if len(ord.History) != 3 {
		t.Fatalf("expected 3 history entries after capture, got %d", len(ord.History))
	}

	ot.transitionOK(t, ord.ID, "SHIPPED")
	ot.transitionOK(t, ord.ID, "DELIVERED")
	ot.cancelRejected(t, ord.ID)

	ord = ot.showOrderOK(t, ord.ID)
	if len(ord.History) != 5 {
		t.Fatalf("expected 5 history entries after delivery, got %d", len(ord.History))
	}

	ord2 := ot.createOrderOK(t, c1)
	env.Stripe.expectedTotal = 1000
	env.Stripe.expectedItems = 1
	sessionURL := ot.stripeCheckoutOK(t, ord2.ID)
	ot.stripeWebhookOK(t, sessionURL)
	ot.stripeWebhookOK(t, sessionURL) // redelivered event

	ord2 = ot.showOrderOK(t, ord2.ID)
	if ord2.OrderStatus != order.Confirmed || ord2.TransactionStatus != order.Captured {
		t.Fatalf("expected CONFIRMED/CAPTURED after webhook, got %s/%s", ord2.OrderStatus, ord2.TransactionStatus)
	}
	if len(ord2.History) != 3 {
		t.Fatalf("expected 3 history entries after a redelivered webhook, got %d", len(ord2.History))
	}
	last := ord2.History[len(ord2.History)-1]
	if last.UserID != order.WebhookActor.UserID || last.UserRole != order.WebhookActor.Role {
		t.Fatalf("expected the webhook actor on the capture entry, got %s/%s", last.UserID, last.UserRole)
	}

	ord3 := ot.createOrderOK(t, c2)
	ot.cancelOK(t, ord3.ID)

	ot.listOrdersOK(t, 3)
}

func orderPayload(courses ...course.Course) map[string]any {
	items := make([]map[string]any, 0, len(courses))
	for _, c := range courses {
		items = append(items, map[string]any{"courseId": c.ID})
	}

	return map[string]any{
		"customerInfo": map[string]any{
			"firstName":       "Linh",
			"lastName":        "Nguyen",
			"email":           "linh@example.com",
			"phone":           "+84912345678",
			"shippingAddress": "12 Nguyen Hue, District 1, HCMC",
		},
		"items": items,
	}
}

func (ot *orderTest) createOrderOK(t *testing.T, courses ...course.Course) order.Order {
	w := ot.request(t, http.MethodPost, "/orders", orderPayload(courses...), ot.CustomerID, claims.RoleCustomer)
	if w.StatusCode != http.StatusCreated {
		t.Fatalf("can't create order: status code %s", w.Status)
	}

	var ord order.Order
	decodeBody(t, w, &ord)

	var tot int64
	for _, c := range courses {
		tot += c.Price
	}
	if ord.TotalAmount != tot {
		t.Fatalf("expected totalAmount %d, got %d", tot, ord.TotalAmount)
	}
	if ord.OrderStatus != order.Pending || ord.TransactionStatus != order.Draft {
		t.Fatalf("expected PENDING/DRAFT, got %s/%s", ord.OrderStatus, ord.TransactionStatus)
	}
	if len(ord.History) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(ord.History))
	}
	return ord
}

func (ot *orderTest) createOrderUnauthenticated(t *testing.T) {
	w := ot.request(t, http.MethodPost, "/orders", orderPayload(), "", "")
	defer w.Body.Close()

	if w.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without identity headers, got %s", w.Status)
	}
}

func (ot *orderTest) createOrderEmpty(t *testing.T) {
	w := ot.request(t, http.MethodPost, "/orders", orderPayload(), ot.CustomerID, claims.RoleCustomer)
	defer w.Body.Close()

	if w.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for an empty order, got %s", w.Status)
	}
}

func (ot *orderTest) createOrderBadSnapshot(t *testing.T, c course.Course) {
	payload := orderPayload(c)
	payload["customerInfo"] = map[string]any{
		"firstName":       "Linh",
		"lastName":        "Nguyen",
		"email":           "not-an-email",
		"phone":           "12345",
		"shippingAddress": "12 Nguyen Hue, District 1, HCMC",
	}

	w := ot.request(t, http.MethodPost, "/orders", payload, ot.CustomerID, claims.RoleCustomer)
	if w.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for a bad snapshot, got %s", w.Status)
	}

	var resp struct {
		Error  string         `json:"error"`
		Fields map[string]any `json:"fields"`
	}
	decodeBody(t, w, &resp)
	if len(resp.Fields) == 0 {
		t.Fatal("expected field violations in the response")
	}
}

func (ot *orderTest) createOrderBadCourse(t *testing.T) {
	payload := orderPayload()
	payload["items"] = []map[string]any{{"courseId": "not-a-uuid"}}

	w := ot.request(t, http.MethodPost, "/orders", payload, ot.CustomerID, claims.RoleCustomer)
	if w.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for a malformed courseId, got %s", w.Status)
	}

	var resp struct {
		Error  string         `json:"error"`
		Fields map[string]any `json:"fields"`
	}
	decodeBody(t, w, &resp)
	if len(resp.Fields) == 0 {
		t.Fatal("expected field violations in the response")
	}
}

func (ot *orderTest) showOrderOK(t *testing.T, id string) order.Order {
	w := ot.request(t, http.MethodGet, "/orders/"+id, nil, ot.CustomerID, claims.RoleCustomer)
	if w.StatusCode != http.StatusOK {
		t.Fatalf("can't fetch order: status code %s", w.Status)
	}

	var ord order.Order
	decodeBody(t, w, &ord)
	return ord
}

func (ot *orderTest) showOrderHiddenFromStranger(t *testing.T, id string) {
	w := ot.request(t, http.MethodGet, "/orders/"+id, nil, validate.GenerateID(), claims.RoleCustomer)
	defer w.Body.Close()

	if w.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for a stranger, got %s", w.Status)
	}
}

func (ot *orderTest) listOrdersOK(t *testing.T, expected int) {
	w := ot.request(t, http.MethodGet, "/orders", nil, ot.CustomerID, claims.RoleCustomer)
	if w.StatusCode != http.StatusOK {
		t.Fatalf("can't list orders: status code %s", w.Status)
	}

	var page order.Page
	decodeBody(t, w, &page)

	if page.TotalDocs != expected || len(page.Docs) != expected {
		t.Fatalf("expected %d orders, got totalDocs=%d docs=%d", expected, page.TotalDocs, len(page.Docs))
	}
	if page.Page != 1 {
		t.Fatalf("expected page 1, got %d", page.Page)
	}
}

func (ot *orderTest) addItemOK(t *testing.T, id, courseID string, total int64) {
	body := map[string]any{"courseId": courseID}
	w := ot.request(t, http.MethodPut, "/orders/"+id+"/items", body, ot.CustomerID, claims.RoleCustomer)
	if w.StatusCode != http.StatusOK {
		t.Fatalf("can't add item: status code %s", w.Status)
	}

	var ord order.Order
	decodeBody(t, w, &ord)
	if ord.TotalAmount != total {
		t.Fatalf("expected totalAmount %d after add, got %d", total, ord.TotalAmount)
	}
}

func (ot *orderTest) addItemLocked(t *testing.T, id, courseID string) {
	body := map[string]any{"courseId": courseID}
	w := ot.request(t, http.MethodPut, "/orders/"+id+"/items", body, ot.CustomerID, claims.RoleCustomer)
	defer w.Body.Close()

	if w.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 adding an item past DRAFT, got %s", w.Status)
	}
}

func (ot *orderTest) removeItemOK(t *testing.T, id, courseID string, total int64) {
	w := ot.request(t, http.MethodDelete, "/orders/"+id+"/items/"+courseID, nil, ot.CustomerID, claims.RoleCustomer)
	if w.StatusCode != http.StatusOK {
		t.Fatalf("can't remove item: status code %s", w.Status)
	}

	var ord order.Order
	decodeBody(t, w, &ord)
	if ord.TotalAmount != total {
		t.Fatalf("expected totalAmount %d after remove, got %d", total, ord.TotalAmount)
	}
}

func (ot *orderTest) transitionOK(t *testing.T, id, status string) {
	body := map[string]any{"orderStatus": status}
	w := ot.request(t, http.MethodPatch, "/orders/"+id+"/status", body, ot.StaffID, claims.RoleProvider)
	defer w.Body.Close()

	if w.StatusCode != http.StatusOK {
		t.Fatalf("can't transition to %s: status code %s", status, w.Status)
	}
}

func (ot *orderTest) transitionRejected(t *testing.T, id, status string) {
	body := map[string]any{"orderStatus": status}
	w := ot.request(t, http.MethodPatch, "/orders/"+id+"/status", body, ot.StaffID, claims.RoleProvider)
	defer w.Body.Close()

	if w.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 transitioning to %s, got %s", status, w.Status)
	}
}

func (ot *orderTest) transitionUnknownStatus(t *testing.T, id string) {
	body := map[string]any{"orderStatus": "TELEPORTED"}
	w := ot.request(t, http.MethodPatch, "/orders/"+id+"/status", body, ot.StaffID, claims.RoleProvider)
	defer w.Body.Close()

	if w.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for an unknown status, got %s", w.Status)
	}
}

func (ot *orderTest) transitionNeedsStaff(t *testing.T, id string) {
	body := map[string]any{"orderStatus": "CONFIRMED"}
	w := ot.request(t, http.MethodPatch, "/orders/"+id+"/status", body, ot.CustomerID, claims.RoleCustomer)
	defer w.Body.Close()

	if w.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a customer transition, got %s", w.Status)
	}
}

func (ot *orderTest) cancelOK(t *testing.T, id string) {
	w := ot.request(t, http.MethodPost, "/orders/"+id+"/cancel", nil, ot.CustomerID, claims.RoleCustomer)
	if w.StatusCode != http.StatusOK {
		t.Fatalf("can't cancel order: status code %s", w.Status)
	}

	var ord order.Order
	decodeBody(t, w, &ord)
	if ord.OrderStatus != order.Cancelled {
		t.Fatalf("expected CANCELLED, got %s", ord.OrderStatus)
	}
}

func (ot *orderTest) cancelRejected(t *testing.T, id string) {
	w := ot.request(t, http.MethodPost, "/orders/"+id+"/cancel", nil, ot.CustomerID, claims.RoleCustomer)
	defer w.Body.Close()

	if w.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 cancelling a delivered order, got %s", w.Status)
	}
}

func (ot *orderTest) paypalCheckoutOK(t *testing.T, id string) string {
	w := ot.request(t, http.MethodPost, "/orders/"+id+"/paypal", nil, ot.CustomerID, claims.RoleCustomer)
	if w.StatusCode != http.StatusOK {
		t.Fatalf("can't create paypal order: status code %s", w.Status)
	}

	var ord paypal.Order
	decodeBody(t, w, &ord)
	if ord.ID == "" {
		t.Fatal("expected a paypal order id")
	}
	return ord.ID
}

func (ot *orderTest) paypalCaptureOK(t *testing.T, ref string) {
	w := ot.request(t, http.MethodPost, "/orders/paypal/"+ref+"/capture", nil, ot.CustomerID, claims.RoleCustomer)
	defer w.Body.Close()

	if w.StatusCode != http.StatusNoContent {
		t.Fatalf("can't capture paypal order: status code %s", w.Status)
	}
}

func (ot *orderTest) stripeCheckoutOK(t *testing.T, id string) string {
	w := ot.request(t, http.MethodPost, "/orders/"+id+"/stripe", nil, ot.CustomerID, claims.RoleCustomer)
	if w.StatusCode != http.StatusOK {
		t.Fatalf("can't create stripe session: status code %s", w.Status)
	}

	var url string
	decodeBody(t, w, &url)
	if url == "" {
		t.Fatal("expected a stripe session url")
	}
	return url
}

func (ot *orderTest) stripeWebhookOK(t *testing.T, sessionURL string) {
	obj := map[string]any{
		"id":   path.Base(sessionURL),
		"mode": stripe.CheckoutSessionModePayment,
	}

	raw, err := json.Marshal(obj)
	if err != nil {
		t.Fatal(err)
	}

	evt := stripe.Event{
		APIVersion: "2022-11-15",
		Type:       "checkout.session.completed",
		Data: &stripe.EventData{
			Raw: json.RawMessage(raw),
		},
	}

	b, err := json.Marshal(evt)
	if err != nil {
		t.Fatal(err)
	}

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   b,
		Secret:    ot.WebhookSecret,
		Timestamp: time.Now(),
	})

	r, err := http.NewRequest(http.MethodPost, ot.URL+"/orders/stripe/capture", bytes.NewBuffer(b))
	if err != nil {
		t.Fatal(err)
	}
	r.Header.Set("Stripe-Signature", signed.Header)

	w, err := http.DefaultClient.Do(r)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Body.Close()

	if w.StatusCode != http.StatusNoContent {
		t.Fatalf("can't trigger stripe webhook: status code %s", w.Status)
	}
}
