package advisor

import (
	"context"
	"fmt"

	"github.com/DracoZBA/Watana/pkg/clients"
	"github.com/DracoZBA/Watana/pkg/llm"
	"github.com/DracoZBA/Watana/pkg/logging"
)

const systemPrompt = "You are an environmental monitoring advisor for a sensor network " +
	"covering forests and agricultural land. Answer concisely and ground every " +
	"conclusion in the data provided."

// Service turns monitoring questions into LLM completions. Transient HTTP
// failures are retried inside the provider transport; the circuit breaker
// here sheds requests once the LLM backend fails persistently.
type Service struct {
	provider llm.Provider
	logger   logging.Logger
	breaker  *clients.CircuitBreaker
}

func NewService(provider llm.Provider, logger logging.Logger) *Service {
	cbCfg := clients.DefaultCircuitBreakerConfig()
	cbCfg.Name = "advisor-llm"
	cbCfg.Logger = logger

	return &Service{
		provider: provider,
		logger:   logger,
		breaker:  clients.NewCircuitBreaker(cbCfg),
	}
}

// AnalysisRequest carries a point-in-time sensor snapshot.
type AnalysisRequest struct {
	Temperature float64 `json:"temperature" binding:"required"`
	Humidity    float64 `json:"humidity" binding:"required"`
	Location    string  `json:"location" binding:"required"`
	DeviceType  string  `json:"deviceType" binding:"required"`
}

// AnalyzeSensorData asks for insights and short-term predictions from a
// sensor snapshot.
func (s *Service) AnalyzeSensorData(ctx context.Context, req AnalysisRequest) (string, error) {
	prompt := fmt.Sprintf(
		"Analyze this sensor snapshot and describe notable conditions and short-term risks. "+
			"Temperature: %.1f C, Humidity: %.1f%%, Location: %s, Device type: %s.",
		req.Temperature, req.Humidity, req.Location, req.DeviceType)
	return s.complete(ctx, prompt)
}

// WildfireRequest carries the inputs for a fire risk assessment.
type WildfireRequest struct {
	Temperature    float64 `json:"temperature" binding:"required"`
	Humidity       float64 `json:"humidity" binding:"required"`
	Location       string  `json:"location" binding:"required"`
	RecentRainfall string  `json:"recentRainfall" binding:"required"`
	WindConditions string  `json:"windConditions" binding:"required"`
}

// PredictWildfire asks for a wildfire risk level and preventive actions.
func (s *Service) PredictWildfire(ctx context.Context, req WildfireRequest) (string, error) {
	prompt := fmt.Sprintf(
		"Assess the wildfire risk from these conditions. "+
			"Temperature: %.1f C, Humidity: %.1f%%, Location: %s, Recent rainfall: %s, Wind conditions: %s. "+
			"State the risk level (Low, Moderate, High, Critical), explain why, and suggest preventive actions.",
		req.Temperature, req.Humidity, req.Location, req.RecentRainfall, req.WindConditions)
	return s.complete(ctx, prompt)
}

// ImpactRequest carries the inputs for an environmental impact check.
type ImpactRequest struct {
	DeviceType      string `json:"deviceType" binding:"required"`
	ImageryAnalysis string `json:"imageryAnalysis" binding:"required"`
	SensorData      string `json:"sensorData" binding:"required"`
	Location        string `json:"location" binding:"required"`
}

// DetectEnvironmentalImpact looks for signs of overgrazing or illegal
// logging in a field report.
func (s *Service) DetectEnvironmentalImpact(ctx context.Context, req ImpactRequest) (string, error) {
	prompt := fmt.Sprintf(
		"Review this monitoring report for signs of overgrazing or illegal logging. "+
			"Device type: %s, Drone imagery analysis: %q, Sensor data: %q, Location: %s. "+
			"Say whether either is indicated and what field verification or action to take.",
		req.DeviceType, req.ImageryAnalysis, req.SensorData, req.Location)
	return s.complete(ctx, prompt)
}

// ReforestationRequest carries the inputs for planting and drought guidance.
type ReforestationRequest struct {
	Location          string `json:"location" binding:"required"`
	SoilType          string `json:"soilType" binding:"required"`
	WaterAvailability string `json:"waterAvailability" binding:"required"`
	ClimateData       string `json:"climateData" binding:"required"`
	CurrentVegetation string `json:"currentVegetation" binding:"required"`
}

// ReforestationGuidance asks for species and water-management
// recommendations for a site.
func (s *Service) ReforestationGuidance(ctx context.Context, req ReforestationRequest) (string, error) {
	prompt := fmt.Sprintf(
		"Recommend reforestation or drought mitigation measures for this site. "+
			"Location: %s, Soil type: %s, Water availability: %s, Climate data: %q, Current vegetation: %q. "+
			"Suggest suitable species, water conservation techniques, or drought management strategies.",
		req.Location, req.SoilType, req.WaterAvailability, req.ClimateData, req.CurrentVegetation)
	return s.complete(ctx, prompt)
}

func (s *Service) complete(ctx context.Context, prompt string) (string, error) {
	var text string
	err := s.breaker.Call(func() error {
		stream, err := s.provider.Complete(ctx, []llm.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		})
		if err != nil {
			return fmt.Errorf("advisor completion: %w", err)
		}

		text, err = llm.CollectText(stream)
		if err != nil {
			return fmt.Errorf("advisor stream: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return text, nil
}
