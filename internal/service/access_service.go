package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"digistore/internal/models"
	"digistore/internal/security"
	"digistore/internal/sourcehost"
	"digistore/internal/store"
)

const purchaseAccessWindow = 365 * 24 * time.Hour

type AccessRequest struct {
	Email          string `json:"email"`
	GithubUsername string `json:"githubUsername"`
	ProductID      string `json:"productId"`
}

type AccessGrant struct {
	Owner          string     `json:"owner"`
	Name           string     `json:"name"`
	URL            string     `json:"url"`
	Permission     string     `json:"permission"`
	AlreadyGranted bool       `json:"alreadyGranted"`
	GrantedAt      *time.Time `json:"grantedAt,omitempty"`
}

// AccessService grants buyers read access to the repository behind a product.
type AccessService struct {
	products  ProductStore
	purchases PurchaseStore
	source    sourcehost.Client
	limiter   RateLimiter
	logger    *logrus.Logger
	now       func() time.Time

	mu    sync.Mutex
	locks map[string]*grantLock
}

type grantLock struct {
	sync.Mutex
	refs int
}

func NewAccessService(logger *logrus.Logger, products ProductStore, purchases PurchaseStore, source sourcehost.Client, limiter RateLimiter) *AccessService {
	return &AccessService{
		products:  products,
		purchases: purchases,
		source:    source,
		limiter:   limiter,
		logger:    logger,
		now:       time.Now,
		locks:     make(map[string]*grantLock),
	}
}

// lock serialises grants for one purchased item and returns the release func.
func (s *AccessService) lock(key string) func() {
	s.mu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &grantLock{}
		s.locks[key] = l
	}
	l.refs++
	s.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		s.mu.Lock()
		if l.refs--; l.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}

func (s *AccessService) Grant(ctx context.Context, req AccessRequest) (*AccessGrant, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	username := strings.TrimSpace(req.GithubUsername)
	productID := strings.TrimSpace(req.ProductID)

	switch {
	case !security.IsValidEmail(email):
		return nil, validationf("invalid email")
	case !security.IsValidGitHubUsername(username):
		return nil, validationf("invalid GitHub username")
	case !security.IsValidProductRef(productID):
		return nil, validationf("invalid product id")
	}

	log := s.logger.WithFields(logrus.Fields{
		"customer":   security.ObfuscateEmail(email),
		"product_id": productID,
	})

	ok, retryAfter, err := s.limiter.Allow(ctx, "access:"+security.HashKey(email))
	if err != nil {
		log.WithError(err).Warn("Repository access rate limiter unavailable")
	} else if !ok {
		log.Warn("Repository access rate limit exceeded")
		return nil, &RateLimitError{RetryAfter: retryAfter}
	}

	purchases, err := s.purchases.ByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to look up purchases: %w", err)
	}
	if len(purchases) == 0 {
		return nil, fmt.Errorf("%w: no purchases for this email", ErrNotFound)
	}

	purchase, idx := findEligiblePurchase(purchases, productID)
	if purchase == nil {
		return nil, fmt.Errorf("%w: no completed purchase of this product", ErrNotFound)
	}
	if s.now().Sub(*purchase.CompletedAt) > purchaseAccessWindow {
		return nil, validationf("purchase has expired")
	}

	if access := purchase.Items[idx].RepositoryAccess; access != nil && access.Granted {
		log.Info("Repository access already granted")
		return existingGrant(access), nil
	}

	product, err := s.products.Get(ctx, productID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: product %s", ErrNotFound, productID)
		}
		return nil, fmt.Errorf("failed to look up product %s: %w", productID, err)
	}
	if product.Repository == nil {
		return nil, validationf("product has no repository")
	}
	repo := *product.Repository

	release := s.lock(purchase.ID + "/" + productID)
	defer release()

	// The snapshot above may be stale; decide against the stored record and
	// record the request before calling out.
	var granted *models.RepositoryAccess
	if _, err := s.purchases.Update(ctx, purchase.ID, func(p *models.Purchase) error {
		if i := p.ItemIndex(productID); i >= 0 {
			if access := p.Items[i].RepositoryAccess; access != nil && access.Granted {
				current := *access
				granted = &current
				return nil
			}
		}
		setAccess(p, productID, repo, false, nil)
		p.GithubUsername = username
		return nil
	}); err != nil {
		return nil, fmt.Errorf("failed to record access request: %w", err)
	}
	if granted != nil {
		log.Info("Repository access already granted")
		return existingGrant(granted), nil
	}

	if err := s.source.AddCollaborator(ctx, repo.Owner, repo.Name, username); err != nil {
		log.WithError(err).Error("Failed to add repository collaborator")
		return nil, fmt.Errorf("%w: could not grant repository access", ErrCollaborator)
	}

	grantedAt := s.now().UTC()
	if _, err := s.purchases.Update(ctx, purchase.ID, func(p *models.Purchase) error {
		setAccess(p, productID, repo, true, &grantedAt)
		p.GithubUsername = username
		return nil
	}); err != nil {
		return nil, fmt.Errorf("failed to record repository access: %w", err)
	}

	log.WithField("repository", repo.Owner+"/"+repo.Name).Info("Repository access granted")
	return &AccessGrant{
		Owner:      repo.Owner,
		Name:       repo.Name,
		URL:        repo.URL(),
		Permission: sourcehost.PermissionRead,
		GrantedAt:  &grantedAt,
	}, nil
}

func existingGrant(access *models.RepositoryAccess) *AccessGrant {
	return &AccessGrant{
		Owner:          access.Owner,
		Name:           access.Repo,
		URL:            models.Repository{Owner: access.Owner, Name: access.Repo}.URL(),
		Permission:     sourcehost.PermissionRead,
		AlreadyGranted: true,
		GrantedAt:      access.GrantedAt,
	}
}

func findEligiblePurchase(purchases []models.Purchase, productID string) (*models.Purchase, int) {
	for i := range purchases {
		p := &purchases[i]
		if p.Status != models.PurchaseCompleted || p.SessionID == "" || p.CompletedAt == nil {
			continue
		}
		if idx := p.ItemIndex(productID); idx >= 0 {
			return p, idx
		}
	}
	return nil, -1
}

func setAccess(p *models.Purchase, productID string, repo models.Repository, granted bool, grantedAt *time.Time) {
	idx := p.ItemIndex(productID)
	if idx < 0 {
		return
	}
	p.Items[idx].RepositoryAccess = &models.RepositoryAccess{
		Owner:           repo.Owner,
		Repo:            repo.Name,
		Granted:         granted,
		GrantedAt:       grantedAt,
		AccessRequested: true,
	}
}

// CheckPermission reports the collaborator permission a user holds on the
// repository behind a product.
func (s *AccessService) CheckPermission(ctx context.Context, productID, username string) (string, error) {
	if !security.IsValidGitHubUsername(username) {
		return "", validationf("invalid GitHub username")
	}
	product, err := s.products.Get(ctx, productID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return "", fmt.Errorf("%w: product %s", ErrNotFound, productID)
		}
		return "", fmt.Errorf("failed to look up product %s: %w", productID, err)
	}
	if product.Repository == nil {
		return "", validationf("product has no repository")
	}
	level, err := s.source.PermissionLevel(ctx, product.Repository.Owner, product.Repository.Name, username)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCollaborator, err)
	}
	return level, nil
}
