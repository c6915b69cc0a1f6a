package repository

import (
	"time"

	"github.com/fjod/paycart/internal/domain"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Amounts are stored as decimal strings; BSON has no codec for decimal.Decimal.
type orderDocument struct {
	ID                primitive.ObjectID `bson:"_id,omitempty"`
	OrderID           string             `bson:"order_id"`
	Billing           billingDocument    `bson:"billing"`
	Currency          string             `bson:"currency"`
	Amount            string             `bson:"amount"`
	Description       string             `bson:"description"`
	LineItems         []itemDocument     `bson:"line_items"`
	Status            string             `bson:"status"`
	GatewayTrackingID string             `bson:"gateway_tracking_id"`
	GatewayReference  string             `bson:"gateway_reference"`
	PaymentMethod     string             `bson:"payment_method"`
	ConfirmationCode  string             `bson:"confirmation_code"`
	CreatedAt         time.Time          `bson:"created_at"`
	UpdatedAt         time.Time          `bson:"updated_at"`
}

type billingDocument struct {
	Email        string `bson:"email"`
	Phone        string `bson:"phone"`
	FirstName    string `bson:"first_name"`
	LastName     string `bson:"last_name"`
	AddressLine1 string `bson:"address_line_1"`
	City         string `bson:"city"`
	CountryCode  string `bson:"country_code"`
}

type itemDocument struct {
	ProductID string `bson:"product_id"`
	Name      string `bson:"name"`
	Price     string `bson:"price"`
	Quantity  int    `bson:"quantity"`
}

func toOrderDocument(o *domain.Order) *orderDocument {
	doc := &orderDocument{
		OrderID:           o.ID,
		Billing:           billingDocument(o.Billing),
		Currency:          o.Currency,
		Amount:            o.Amount.String(),
		Description:       o.Description,
		LineItems:         make([]itemDocument, len(o.LineItems)),
		Status:            string(o.Status),
		GatewayTrackingID: o.GatewayTrackingID,
		GatewayReference:  o.GatewayReference,
		PaymentMethod:     o.PaymentMethod,
		ConfirmationCode:  o.ConfirmationCode,
		CreatedAt:         o.CreatedAt,
		UpdatedAt:         o.UpdatedAt,
	}
	for i, item := range o.LineItems {
		doc.LineItems[i] = itemDocument{
			ProductID: item.ProductID,
			Name:      item.Name,
			Price:     item.UnitPrice.String(),
			Quantity:  item.Quantity,
		}
	}
	return doc
}

func toOrderEntity(doc *orderDocument) (*domain.Order, error) {
	amount, err := decimal.NewFromString(doc.Amount)
	if err != nil {
		return nil, err
	}

	items := make([]domain.CartItem, len(doc.LineItems))
	for i, item := range doc.LineItems {
		price, err := decimal.NewFromString(item.Price)
		if err != nil {
			return nil, err
		}
		items[i] = domain.CartItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			UnitPrice: price,
			Quantity:  item.Quantity,
		}
	}

	return &domain.Order{
		ID:                doc.OrderID,
		Billing:           domain.BillingContact(doc.Billing),
		Currency:          doc.Currency,
		Amount:            amount,
		Description:       doc.Description,
		LineItems:         items,
		Status:            domain.OrderStatus(doc.Status),
		GatewayTrackingID: doc.GatewayTrackingID,
		GatewayReference:  doc.GatewayReference,
		PaymentMethod:     doc.PaymentMethod,
		ConfirmationCode:  doc.ConfirmationCode,
		CreatedAt:         doc.CreatedAt,
		UpdatedAt:         doc.UpdatedAt,
	}, nil
}
