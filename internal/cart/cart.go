// Package cart implements the shopping-cart state machine: a pure reducer over
// an immutable-style Cart value whose derived totals are recomputed from the
// line items after every mutation.
package cart

import (
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"digistore/internal/models"
	"digistore/internal/security"
)

type Item struct {
	Product  models.Product `json:"product"`
	Quantity int            `json:"quantity"`
}

type Cart struct {
	Items     []Item          `json:"items"`
	Total     decimal.Decimal `json:"total"`
	ItemCount int             `json:"itemCount"`
}

func Empty() Cart {
	return Cart{Items: []Item{}, Total: decimal.Zero}
}

type ActionType string

const (
	ActionAdd    ActionType = "ADD_TO_CART"
	ActionRemove ActionType = "REMOVE_FROM_CART"
	ActionUpdate ActionType = "UPDATE_QUANTITY"
	ActionClear  ActionType = "CLEAR_CART"
	ActionLoad   ActionType = "LOAD_CART"
)

type Action struct {
	Type      ActionType
	Product   models.Product
	ProductID string
	Quantity  int
	Cart      Cart
}

// Add builds an ADD_TO_CART action. Quantity defaults to 1 when omitted.
func Add(product models.Product, quantity ...int) Action {
	q := 1
	if len(quantity) > 0 {
		q = quantity[0]
	}
	return Action{Type: ActionAdd, Product: product, Quantity: q}
}

func Remove(productID string) Action {
	return Action{Type: ActionRemove, ProductID: productID}
}

func UpdateQuantity(productID string, quantity int) Action {
	return Action{Type: ActionUpdate, ProductID: productID, Quantity: quantity}
}

func Clear() Action {
	return Action{Type: ActionClear}
}

// Load replaces the state wholesale. Callers pass a cart that has already been
// through Rehydrate.
func Load(c Cart) Action {
	return Action{Type: ActionLoad, Cart: c}
}

type Reducer struct {
	logger *logrus.Logger
}

func NewReducer(logger *logrus.Logger) *Reducer {
	return &Reducer{logger: logger}
}

// Reduce returns the state that results from applying action to state. Invalid
// actions are logged and leave the state unchanged.
func (r *Reducer) Reduce(state Cart, action Action) Cart {
	switch action.Type {
	case ActionAdd:
		return r.add(state, action.Product, action.Quantity)

	case ActionRemove:
		items := make([]Item, 0, len(state.Items))
		for _, item := range state.Items {
			if item.Product.ID != action.ProductID {
				items = append(items, item)
			}
		}
		return withTotals(items)

	case ActionUpdate:
		if !security.IsValidProductID(action.ProductID) {
			r.logger.WithField("product_id", action.ProductID).Error("cart: invalid product ID")
			return state
		}
		if action.Quantity <= 0 {
			return r.Reduce(state, Remove(action.ProductID))
		}
		if !security.IsValidQuantity(action.Quantity) {
			r.logger.WithField("quantity", action.Quantity).Error("cart: invalid quantity")
			return state
		}
		items := make([]Item, len(state.Items))
		for i, item := range state.Items {
			if item.Product.ID == action.ProductID {
				item.Quantity = action.Quantity
			}
			items[i] = item
		}
		return withTotals(items)

	case ActionClear:
		return Empty()

	case ActionLoad:
		return action.Cart

	default:
		return state
	}
}

func (r *Reducer) add(state Cart, product models.Product, quantity int) Cart {
	if !security.IsValidProductID(product.ID) {
		r.logger.WithField("product_id", product.ID).Error("cart: invalid product ID")
		return state
	}
	if !security.IsValidQuantity(quantity) {
		r.logger.WithField("quantity", quantity).Error("cart: invalid quantity")
		return state
	}

	items := make([]Item, 0, len(state.Items)+1)
	merged := false
	for _, item := range state.Items {
		if item.Product.ID == product.ID {
			item.Quantity += quantity
			merged = true
			// Only the added amount is bounds-checked.
			if item.Quantity > security.MaxQuantity {
				r.logger.WithFields(logrus.Fields{
					"product_id": product.ID,
					"quantity":   item.Quantity,
				}).Warn("cart: merged quantity exceeds maximum")
			}
		}
		items = append(items, item)
	}
	if !merged {
		items = append(items, Item{Product: product, Quantity: quantity})
	}
	return withTotals(items)
}

// Rehydrate drops malformed entries from a persisted cart and recomputes the
// derived fields. Stored totals are never trusted.
func Rehydrate(c Cart) Cart {
	items := make([]Item, 0, len(c.Items))
	for _, item := range c.Items {
		if !security.IsValidProductID(item.Product.ID) || !security.IsValidQuantity(item.Quantity) {
			continue
		}
		if item.Product.Price.IsNegative() {
			continue
		}
		items = append(items, item)
	}
	return withTotals(items)
}

func withTotals(items []Item) Cart {
	total := decimal.Zero
	count := 0
	for _, item := range items {
		total = total.Add(item.Product.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
		count += item.Quantity
	}
	return Cart{Items: items, Total: total, ItemCount: count}
}
