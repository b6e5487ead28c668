package domain

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"
)

// moneyScale — количество знаков после запятой для денежных значений.
const moneyScale = 2

// maxQuantity — верхняя граница количества (INT в order_items).
const maxQuantity = math.MaxInt32

// moneyLimit — исключающая граница денежных значений: NUMERIC(19,2)
// хранит не больше 17 цифр целой части.
var moneyLimit = decimal.New(1, 17)

// OrderRequest — входящее сообщение о заказе.
type OrderRequest struct {
	// ExternalID — внешний идентификатор заказа.
	ExternalID string `json:"externalId"`

	// Items — позиции заказа, минимум одна.
	Items []ItemRequest `json:"items"`
}

// ItemRequest — позиция во входящем сообщении.
type ItemRequest struct {
	ProductName string          `json:"productName"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Quantity    int             `json:"quantity"`
}

// FieldError — ошибка валидации одного поля.
type FieldError struct {
	Field  string
	Reason string
}

func (e FieldError) Error() string {
	return e.Field + ": " + e.Reason
}

// ValidationErrors — все ошибки валидации запроса.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	parts := make([]string, len(v))
	for i, e := range v {
		parts[i] = e.Error()
	}
	return strings.Join(parts, "; ")
}

// Normalize возвращает копию запроса с обрезанными пробелами
// и NFC-нормализованными строками.
func (r OrderRequest) Normalize() OrderRequest {
	out := OrderRequest{
		ExternalID: normalizeText(r.ExternalID),
		Items:      make([]ItemRequest, len(r.Items)),
	}
	for i, item := range r.Items {
		item.ProductName = normalizeText(item.ProductName)
		out.Items[i] = item
	}
	return out
}

// Validate проверяет запрос. Возвращает ValidationErrors или nil.
func (r OrderRequest) Validate() error {
	var errs ValidationErrors

	if normalizeText(r.ExternalID) == "" {
		errs = append(errs, FieldError{Field: "externalId", Reason: "is required"})
	}

	if len(r.Items) == 0 {
		errs = append(errs, FieldError{Field: "items", Reason: "must contain at least one item"})
	}

	total := decimal.Zero
	totalOK := true

	for i, item := range r.Items {
		prefix := fmt.Sprintf("items[%d].", i)

		if normalizeText(item.ProductName) == "" {
			errs = append(errs, FieldError{Field: prefix + "productName", Reason: "is required"})
		}

		priceOK := false
		switch {
		case !item.UnitPrice.IsPositive():
			errs = append(errs, FieldError{Field: prefix + "unitPrice", Reason: "must be positive"})
		case !item.UnitPrice.Equal(item.UnitPrice.Round(moneyScale)):
			errs = append(errs, FieldError{Field: prefix + "unitPrice", Reason: "must have at most 2 decimal places"})
		case item.UnitPrice.GreaterThanOrEqual(moneyLimit):
			errs = append(errs, FieldError{Field: prefix + "unitPrice", Reason: "must be less than 10^17"})
		default:
			priceOK = true
		}

		quantityOK := false
		switch {
		case item.Quantity <= 0:
			errs = append(errs, FieldError{Field: prefix + "quantity", Reason: "must be positive"})
		case item.Quantity > maxQuantity:
			errs = append(errs, FieldError{Field: prefix + "quantity", Reason: fmt.Sprintf("must not exceed %d", maxQuantity)})
		default:
			quantityOK = true
		}

		if !priceOK || !quantityOK {
			totalOK = false
			continue
		}

		line := item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		if line.GreaterThanOrEqual(moneyLimit) {
			errs = append(errs, FieldError{Field: prefix + "quantity", Reason: "line total must be less than 10^17"})
			totalOK = false
			continue
		}
		total = total.Add(line)
	}

	if totalOK && total.GreaterThanOrEqual(moneyLimit) {
		errs = append(errs, FieldError{Field: "items", Reason: "order total must be less than 10^17"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// ToOrder строит новый заказ в статусе RECEIVED со всеми позициями.
// Запрос должен быть провалидирован.
func (r OrderRequest) ToOrder() (*Order, error) {
	n := r.Normalize()

	order := NewOrder(n.ExternalID)
	for _, item := range n.Items {
		if err := order.AddItem(NewOrderItem(item.ProductName, item.UnitPrice, item.Quantity)); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// NormalizeKey приводит внешний идентификатор к виду, в котором он
// хранится: без пробелов по краям, в NFC.
func NormalizeKey(externalID string) string {
	return normalizeText(externalID)
}

func normalizeText(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
