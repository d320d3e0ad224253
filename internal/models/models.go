package models

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Prices are stored and served as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

type Category string

const (
	CategoryUIKits        Category = "ui-kits"
	CategoryTemplates     Category = "templates"
	CategoryIcons         Category = "icons"
	CategoryIllustrations Category = "illustrations"
	CategoryCodeSnippets  Category = "code-snippets"
	CategoryDesignSystems Category = "design-systems"
)

var categories = map[Category]bool{
	CategoryUIKits:        true,
	CategoryTemplates:     true,
	CategoryIcons:         true,
	CategoryIllustrations: true,
	CategoryCodeSnippets:  true,
	CategoryDesignSystems: true,
}

func (c Category) Valid() bool {
	return categories[c]
}

type Repository struct {
	Owner       string `json:"owner"`
	Name        string `json:"name"`
	Private     bool   `json:"private"`
	Description string `json:"description,omitempty"`
}

func (r Repository) URL() string {
	return "https://github.com/" + r.Owner + "/" + r.Name
}

type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Category    Category        `json:"category"`
	Image       string          `json:"image"`
	Images      []string        `json:"images,omitempty"`
	Tags        []string        `json:"tags"`
	DownloadURL string          `json:"downloadUrl,omitempty"`
	Preview     string          `json:"preview,omitempty"`
	Featured    bool            `json:"featured,omitempty"`
	Repository  *Repository     `json:"repository,omitempty"`
}

type PurchaseStatus string

const (
	PurchasePending   PurchaseStatus = "pending"
	PurchaseCompleted PurchaseStatus = "completed"
	PurchaseFailed    PurchaseStatus = "failed"
)

type RepositoryAccess struct {
	Owner           string     `json:"owner"`
	Repo            string     `json:"repo"`
	Granted         bool       `json:"granted"`
	GrantedAt       *time.Time `json:"grantedAt,omitempty"`
	AccessRequested bool       `json:"accessRequested,omitempty"`
}

type PurchaseItem struct {
	ProductID        string            `json:"productId"`
	ProductName      string            `json:"productName"`
	Price            decimal.Decimal   `json:"price"`
	Quantity         int               `json:"quantity"`
	RepositoryAccess *RepositoryAccess `json:"repositoryAccess,omitempty"`
}

type Purchase struct {
	ID             string          `json:"id"`
	SessionID      string          `json:"sessionId"`
	CustomerEmail  string          `json:"customerEmail"`
	GithubUsername string          `json:"githubUsername,omitempty"`
	Items          []PurchaseItem  `json:"items"`
	TotalAmount    decimal.Decimal `json:"totalAmount"`
	Status         PurchaseStatus  `json:"status"`
	CreatedAt      time.Time       `json:"createdAt"`
	CompletedAt    *time.Time      `json:"completedAt,omitempty"`
}

// ItemIndex returns the index of the first item for productID, or -1.
func (p *Purchase) ItemIndex(productID string) int {
	for i := range p.Items {
		if p.Items[i].ProductID == productID {
			return i
		}
	}
	return -1
}

type Subscriber struct {
	Email        string    `json:"email"`
	SubscribedAt time.Time `json:"subscribedAt"`
	IPAddress    string    `json:"ipAddress,omitempty"`
	UserAgent    string    `json:"userAgent,omitempty"`
}

type SubscriberStats struct {
	Total              int            `json:"total"`
	ThisMonth          int            `json:"thisMonth"`
	MonthlyBreakdown   map[string]int `json:"monthlyBreakdown"`
	LatestSubscription *time.Time     `json:"latestSubscription"`
}
