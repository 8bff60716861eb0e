package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Role is the permission level of a user
type Role string

const (
	RoleOperador Role = "Operador"
	RoleAdmin    Role = "Admin"
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	return r == RoleOperador || r == RoleAdmin
}

// Market is an exchange segment code
type Market string

const (
	MarketCL       Market = "CL"
	MarketPE       Market = "PE"
	MarketCO       Market = "CO"
	MarketRegional Market = "Regional"
)

// FeeMarkets lists the markets that carry a fee configuration
var FeeMarkets = []Market{MarketCL, MarketPE, MarketCO}

// HasFees reports whether a fee record may be configured for m
func (m Market) HasFees() bool {
	for _, fm := range FeeMarkets {
		if m == fm {
			return true
		}
	}
	return false
}

// Side is the direction of an order
type Side string

const (
	SideCompra Side = "Compra"
	SideVenta  Side = "Venta"
)

// Valid reports whether s is a known side
func (s Side) Valid() bool {
	return s == SideCompra || s == SideVenta
}

// OrderStatus is the lifecycle state of an order
type OrderStatus string

const (
	StatusPendiente OrderStatus = "Pendiente"
	StatusEjecutada OrderStatus = "Ejecutada"
	// StatusCancelada is part of the schema but nothing produces it.
	StatusCancelada OrderStatus = "Cancelada"
)

// FictitiousMatch fills the order reference of the side with no real order
const FictitiousMatch = "MATCH_FICTICIO"

// User represents a stored account
type User struct {
	ID           string
	Username     string
	PasswordHash []byte
	Role         Role
	Market       Market
}

// Identity returns the session view of the user
func (u *User) Identity() Identity {
	return Identity{UserID: u.ID, Username: u.Username, Role: u.Role, Market: u.Market}
}

// Identity is the authenticated caller bound to a session
type Identity struct {
	UserID   string `json:"idUsuario"`
	Username string `json:"nombre"`
	Role     Role   `json:"rol"`
	Market   Market `json:"perfilBolsa"`
}

// Order represents a buy or sell order
type Order struct {
	ID         int64       `json:"idOrden"`
	UserID     string      `json:"-"`
	Side       Side        `json:"tipo"`
	Instrument string      `json:"instrumento"`
	Quantity   int64       `json:"cantidad"`
	LimitPrice *float64    `json:"precioLimite"` // nil for market orders
	Status     OrderStatus `json:"estado"`
	CreatedAt  time.Time   `json:"fechaCreacion"`
}

// Transaction represents a simulated fill
type Transaction struct {
	ID          int64     `json:"idTransaccion"`
	BuyOrderID  string    `json:"idOrdenCompra"`
	SellOrderID string    `json:"idOrdenVenta"`
	Price       float64   `json:"precioEjecucion"`
	Quantity    int64     `json:"cantidadEjecutada"`
	ExecutedAt  time.Time `json:"fechaEjecucion"`
	Market      Market    `json:"bolsaOrigen"`
}

// Amount returns price times quantity rounded to cents
func (t Transaction) Amount() float64 {
	amount, _ := decimal.NewFromFloat(t.Price).
		Mul(decimal.NewFromInt(t.Quantity)).
		Round(2).
		Float64()
	return amount
}

// FeeConfig is the base fee rate of a market
type FeeConfig struct {
	Market    Market    `json:"idMercado" bson:"idMercado"`
	BaseRate  float64   `json:"tarifa_base" bson:"tarifa_base"`
	UpdatedAt time.Time `json:"timestamp" bson:"timestamp"`
}
