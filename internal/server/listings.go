package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	listingdomain "github.com/listingcraft/listingcraft/internal/listing/domain"
	"github.com/listingcraft/listingcraft/pkg/db/pagination"
)

type createListingRequest struct {
	PropertyType    string   `json:"property_type"`
	Title           string   `json:"title"`
	Address         string   `json:"address"`
	City            string   `json:"city"`
	State           string   `json:"state"`
	Country         string   `json:"country"`
	ZipCode         string   `json:"zip_code"`
	PriceCents      int64    `json:"price_cents"`
	Bedrooms        *int     `json:"bedrooms,omitempty"`
	Bathrooms       *float64 `json:"bathrooms,omitempty"`
	SquareFeet      *int     `json:"square_feet,omitempty"`
	LotSize         *int     `json:"lot_size,omitempty"`
	YearBuilt       *int     `json:"year_built,omitempty"`
	KeyFeatures     []string `json:"key_features,omitempty"`
	Tone            string   `json:"tone"`
	TargetAudience  string   `json:"target_audience"`
	AdditionalNotes string   `json:"additional_notes"`
}

func (s *Server) CreateListing(c *gin.Context) {
	account, ok := accountID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req createListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	listing, err := s.listingSvc.Create(c.Request.Context(), account, listingdomain.CreateListingRequest{
		PropertyType:    listingdomain.PropertyType(strings.ToUpper(strings.TrimSpace(req.PropertyType))),
		Title:           req.Title,
		Address:         req.Address,
		City:            req.City,
		State:           req.State,
		Country:         req.Country,
		ZipCode:         req.ZipCode,
		PriceCents:      req.PriceCents,
		Bedrooms:        req.Bedrooms,
		Bathrooms:       req.Bathrooms,
		SquareFeet:      req.SquareFeet,
		LotSize:         req.LotSize,
		YearBuilt:       req.YearBuilt,
		KeyFeatures:     req.KeyFeatures,
		Tone:            listingdomain.Tone(strings.ToUpper(strings.TrimSpace(req.Tone))),
		TargetAudience:  listingdomain.TargetAudience(strings.ToUpper(strings.TrimSpace(req.TargetAudience))),
		AdditionalNotes: req.AdditionalNotes,
	})
	if err != nil {
		// The row exists even when generation failed; the client retries
		// through the regenerate endpoint.
		if errors.Is(err, listingdomain.ErrGenerationFailed) && listing != nil {
			c.JSON(http.StatusOK, gin.H{
				"data":    listing,
				"warning": "description_generation_failed",
			})
			return
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": listing})
}

func (s *Server) ListListings(c *gin.Context) {
	account, ok := accountID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var query struct {
		pagination.Pagination
		Favorites bool `form:"favorites"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	listings, pageInfo, err := s.listingSvc.List(c.Request.Context(), account, listingdomain.ListRequest{
		Pagination:    query.Pagination,
		FavoritesOnly: query.Favorites,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": listings, "page_info": pageInfo})
}

func (s *Server) GetListing(c *gin.Context) {
	account, listingID, ok := s.listingTarget(c)
	if !ok {
		return
	}

	listing, err := s.listingSvc.Get(c.Request.Context(), account, listingID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": listing})
}

func (s *Server) RegenerateListing(c *gin.Context) {
	account, listingID, ok := s.listingTarget(c)
	if !ok {
		return
	}

	listing, err := s.listingSvc.Regenerate(c.Request.Context(), account, listingID)
	if err != nil {
		if errors.Is(err, listingdomain.ErrGenerationFailed) && listing != nil {
			c.JSON(http.StatusOK, gin.H{
				"data":    listing,
				"warning": "description_generation_failed",
			})
			return
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": listing})
}

func (s *Server) UpdateListingDescription(c *gin.Context) {
	account, listingID, ok := s.listingTarget(c)
	if !ok {
		return
	}

	var req struct {
		Description string `json:"description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	listing, err := s.listingSvc.UpdateDescription(c.Request.Context(), account, listingID, req.Description)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": listing})
}

func (s *Server) ToggleListingFavorite(c *gin.Context) {
	account, listingID, ok := s.listingTarget(c)
	if !ok {
		return
	}

	listing, err := s.listingSvc.ToggleFavorite(c.Request.Context(), account, listingID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": listing})
}

func (s *Server) DeleteListing(c *gin.Context) {
	account, listingID, ok := s.listingTarget(c)
	if !ok {
		return
	}

	if err := s.listingSvc.Delete(c.Request.Context(), account, listingID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"deleted": true}})
}

func (s *Server) listingTarget(c *gin.Context) (snowflake.ID, snowflake.ID, bool) {
	account, ok := accountID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return 0, 0, false
	}

	listingID, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, listingdomain.ErrListingNotFound)
		return 0, 0, false
	}
	return account, listingID, true
}
