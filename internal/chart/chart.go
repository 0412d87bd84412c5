// Package chart computes natal charts: it validates birth data, geocodes
// the birth place and calls the chart calculator sidecar.
package chart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/kundali-rag/internal/domain"
	"github.com/go-playground/validator/v10"
)

// Provider computes a chart for a profile.
type Provider interface {
	Compute(ctx context.Context, profile domain.UserProfile) (*domain.Chart, error)
}

// Coordinates is a geocoded point.
type Coordinates struct {
	Latitude    float64
	Longitude   float64
	DisplayName string
}

// Geocoder resolves a place name to coordinates. It returns
// domain.ErrLocationNotFound when the place is unknown.
type Geocoder interface {
	Geocode(ctx context.Context, place string) (Coordinates, error)
}

// Request is the calculator input.
type Request struct {
	Name        string
	BirthDate   string
	BirthTime   string
	BirthPlace  string
	Year        int
	Month       int
	Day         int
	Hour        int
	Minute      int
	Latitude    float64
	Longitude   float64
	Ayanamsa    string
	HouseSystem string
}

// Calculator computes the astrological chart for a resolved birth moment.
type Calculator interface {
	Calculate(ctx context.Context, req Request) (*domain.Chart, error)
}

// Service is the default Provider.
type Service struct {
	validate    *validator.Validate
	geocoder    Geocoder
	calculator  Calculator
	ayanamsa    string
	houseSystem string
	logger      *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithSettings overrides the ayanamsa and house system sent to the calculator.
func WithSettings(ayanamsa, houseSystem string) Option {
	return func(s *Service) {
		if ayanamsa != "" {
			s.ayanamsa = ayanamsa
		}
		if houseSystem != "" {
			s.houseSystem = houseSystem
		}
	}
}

// NewService creates a chart Service.
func NewService(geocoder Geocoder, calculator Calculator, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		geocoder:    geocoder,
		calculator:  calculator,
		ayanamsa:    "Lahiri",
		houseSystem: "Equal",
		logger:      logger.With("component", "chart"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Validate checks the profile fields and returns a domain.InputError
// describing the first invalid field.
func (s *Service) Validate(profile domain.UserProfile) error {
	if err := s.validate.Struct(profile); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &domain.InputError{
				Field:  jsonFieldName(fe.Field()),
				Reason: describeTag(fe.Tag(), fe.Param()),
				Err:    err,
			}
		}
		return &domain.InputError{Reason: "invalid profile", Err: err}
	}
	return nil
}

// Compute validates the profile, resolves the birth place and calculates
// the chart.
func (s *Service) Compute(ctx context.Context, profile domain.UserProfile) (*domain.Chart, error) {
	if err := s.Validate(profile); err != nil {
		return nil, err
	}

	birth, err := time.Parse("2006-01-02 15:04", profile.BirthDate+" "+profile.BirthTime)
	if err != nil {
		return nil, &domain.InputError{Field: "birth_date", Reason: "unparseable birth moment", Err: err}
	}

	coords, err := s.geocoder.Geocode(ctx, profile.BirthPlace)
	if err != nil {
		if errors.Is(err, domain.ErrLocationNotFound) {
			return nil, &domain.InputError{
				Field:  "birth_place",
				Reason: fmt.Sprintf("location not found: %s", profile.BirthPlace),
				Err:    err,
			}
		}
		return nil, fmt.Errorf("geocode birth place: %w", err)
	}

	s.logger.Info("Computing chart",
		"birth_place", profile.BirthPlace,
		"latitude", coords.Latitude,
		"longitude", coords.Longitude)

	c, err := s.calculator.Calculate(ctx, Request{
		Name:        profile.Name,
		BirthDate:   profile.BirthDate,
		BirthTime:   profile.BirthTime,
		BirthPlace:  profile.BirthPlace,
		Year:        birth.Year(),
		Month:       int(birth.Month()),
		Day:         birth.Day(),
		Hour:        birth.Hour(),
		Minute:      birth.Minute(),
		Latitude:    coords.Latitude,
		Longitude:   coords.Longitude,
		Ayanamsa:    s.ayanamsa,
		HouseSystem: s.houseSystem,
	})
	if err != nil {
		return nil, err
	}

	c.UserName = profile.Name
	if c.BirthDetails.BirthPlace == "" {
		c.BirthDetails = domain.BirthDetails{
			BirthDate:  profile.BirthDate,
			BirthTime:  profile.BirthTime,
			BirthPlace: profile.BirthPlace,
			Year:       birth.Year(),
			Month:      int(birth.Month()),
			Day:        birth.Day(),
			Hour:       birth.Hour(),
			Minute:     birth.Minute(),
		}
	}
	if c.Location.Latitude == 0 && c.Location.Longitude == 0 {
		c.Location.Latitude = coords.Latitude
		c.Location.Longitude = coords.Longitude
	}
	if c.Settings.Ayanamsa == "" {
		c.Settings = domain.ChartSettings{Ayanamsa: s.ayanamsa, HouseSystem: s.houseSystem}
	}

	s.logger.Info("Chart computed",
		"sun_sign", c.KeyPositions.Sun.Sign,
		"moon_sign", c.KeyPositions.Moon.Sign,
		"ascendant_sign", c.KeyPositions.Ascendant.Sign)

	return c, nil
}

func jsonFieldName(field string) string {
	switch field {
	case "Name":
		return "name"
	case "BirthDate":
		return "birth_date"
	case "BirthTime":
		return "birth_time"
	case "BirthPlace":
		return "birth_place"
	case "PreferredLanguage":
		return "preferred_language"
	default:
		return strings.ToLower(field)
	}
}

func describeTag(tag, param string) string {
	switch tag {
	case "required":
		return "is required"
	case "datetime":
		return fmt.Sprintf("must match format %s", param)
	case "oneof":
		return fmt.Sprintf("must be one of: %s", param)
	default:
		return fmt.Sprintf("failed %s validation", tag)
	}
}
