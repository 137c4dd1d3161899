package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/BaSui01/tripflow/types"
	"go.uber.org/zap"
)

// =============================================================================
// 🧳 结构化数据模型
// =============================================================================

// FlightBooking 航班预订结果
type FlightBooking struct {
	DepartureCity      string  `json:"departure_city"`
	DestinationCity    string  `json:"destination_city"`
	DepartureDate      string  `json:"departure_date"`
	ReturnDate         string  `json:"return_date"`
	Airline            string  `json:"airline"`
	FlightNumber       string  `json:"flight_number"`
	TotalPrice         float64 `json:"total_price"`
	BookingReference   string  `json:"booking_reference"`
	NumberOfPassengers int     `json:"number_of_passengers"`
}

// HotelBooking 酒店预订结果
type HotelBooking struct {
	City             string  `json:"city"`
	CheckInDate      string  `json:"check_in_date"`
	CheckOutDate     string  `json:"check_out_date"`
	HotelName        string  `json:"hotel_name"`
	RoomType         string  `json:"room_type"`
	TotalPrice       float64 `json:"total_price"`
	BookingReference string  `json:"booking_reference"`
}

// CarRental 租车预订结果
type CarRental struct {
	RentalCity       string  `json:"rental_city"`
	RentalStartDate  string  `json:"rental_start_date"`
	RentalEndDate    string  `json:"rental_end_date"`
	CarType          string  `json:"car_type"`
	Company          string  `json:"company"`
	TotalPrice       float64 `json:"total_price"`
	BookingReference string  `json:"booking_reference"`
}

// ActivityDetail 单个活动
type ActivityDetail struct {
	ActivityName        string `json:"activity_name"`
	ActivityType        string `json:"activity_type"`
	ActivityDescription string `json:"activity_description"`
}

// Activities 目的地活动列表
type Activities struct {
	DestinationCity string           `json:"destination_city"`
	Activities      []ActivityDetail `json:"activities"`
}

// DestinationInfo 目的地信息
type DestinationInfo struct {
	City                string   `json:"city"`
	Country             string   `json:"country"`
	Description         string   `json:"description"`
	BestTimeToVisit     string   `json:"best_time_to_visit"`
	AverageTemperature  string   `json:"average_temperature"`
	Currency            string   `json:"currency"`
	Language            string   `json:"language"`
	SimilarDestinations []string `json:"similar_destinations"`
}

// Greeter 问候回复
type Greeter struct {
	Greeting string `json:"greeting"`
}

// GreetingText is sent when a session opens and whenever the user only says hello.
const GreetingText = "Greetings, Adventurer! 🌍 Ready to embark on your next journey? " +
	"I'm here to turn your travel dreams into reality. Let's dive into the details and " +
	"craft an unforgettable adventure together. From flights to sights, I've got you covered. Let's get started!"

// =============================================================================
// ⚙️ 模拟配置
// =============================================================================

// SimulationConfig 模拟 Agent 配置
type SimulationConfig struct {
	// Seed 随机种子，0 表示使用当前时间
	Seed int64
	// Latency 模拟下游调用耗时
	Latency time.Duration
	// DefaultCity 无法从文本中识别城市时使用
	DefaultCity string
	// DepartureCity 航班出发城市
	DepartureCity string
	// StartDate / EndDate 预订日期（YYYY-MM-DD）
	StartDate string
	EndDate   string
}

// DefaultSimulationConfig 返回默认模拟配置
func DefaultSimulationConfig() SimulationConfig {
	return SimulationConfig{
		DefaultCity:   "Paris",
		DepartureCity: "New York",
		StartDate:     "2023-12-21",
		EndDate:       "2023-12-26",
	}
}

// simulator 为所有模拟 Agent 提供共享的随机源与城市解析
type simulator struct {
	cfg    SimulationConfig
	logger *zap.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

func newSimulator(cfg SimulationConfig, logger *zap.Logger) *simulator {
	def := DefaultSimulationConfig()
	if cfg.DefaultCity == "" {
		cfg.DefaultCity = def.DefaultCity
	}
	if cfg.DepartureCity == "" {
		cfg.DepartureCity = def.DepartureCity
	}
	if cfg.StartDate == "" {
		cfg.StartDate = def.StartDate
	}
	if cfg.EndDate == "" {
		cfg.EndDate = def.EndDate
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &simulator{cfg: cfg, logger: logger, rng: rand.New(rand.NewSource(seed))}
}

func (s *simulator) intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Intn(n)
}

func (s *simulator) reference(prefix, city string) string {
	code := strings.ToUpper(city)
	if len(code) > 3 {
		code = code[:3]
	}
	ref := fmt.Sprintf("%s-%04d-%s", prefix, 1000+s.intn(9000), code)
	s.logger.Debug("simulated booking", zap.String("reference", ref))
	return ref
}

// wait 模拟下游耗时，可被取消
func (s *simulator) wait(ctx context.Context) error {
	if s.cfg.Latency <= 0 {
		return nil
	}
	select {
	case <-time.After(s.cfg.Latency):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *simulator) days() int {
	start, err1 := time.Parse("2006-01-02", s.cfg.StartDate)
	end, err2 := time.Parse("2006-01-02", s.cfg.EndDate)
	if err1 != nil || err2 != nil || !end.After(start) {
		return 1
	}
	return int(end.Sub(start).Hours() / 24)
}

var cityPattern = regexp.MustCompile(`\b(?:in|to|at|for|visit|visiting)\s+([A-Z][a-zA-Z]+(?:\s+[A-Z][a-zA-Z]+)?)`)

func (s *simulator) city(text string) string {
	if m := cityPattern.FindStringSubmatch(text); len(m) == 2 {
		return m[1]
	}
	return s.cfg.DefaultCity
}

func wantsWholePlan(task types.AgentTask) bool {
	return task.Origin == types.OriginRouter &&
		strings.Contains(strings.ToLower(task.Payload.Text), "travel plan")
}

func structured(id ID, data any, message string) (json.RawMessage, error) {
	raw, err := json.Marshal(AgentStructuredResponse{AgentType: id, Data: data, Message: message})
	if err != nil {
		return nil, fmt.Errorf("marshal %s response: %w", id, err)
	}
	return raw, nil
}

// =============================================================================
// ✈️ 航班
// =============================================================================

type flightOption struct {
	airline, number string
	price           float64
}

var flightOptions = []flightOption{
	{"Air France", "AF123", 200},
	{"Delta", "DL456", 250},
	{"British Airways", "BA789", 300},
	{"Lufthansa", "LH101", 220},
	{"Emirates", "EK202", 400},
}

// FlightAgent 模拟航班预订
type FlightAgent struct{ sim *simulator }

// Capability implements Agent.
func (a *FlightAgent) Capability() types.IntentLabel { return types.LabelFlight }

// Handle implements Agent.
func (a *FlightAgent) Handle(ctx context.Context, task types.AgentTask) (types.AgentResult, error) {
	if wantsWholePlan(task) {
		return types.HandoffResult(task, "flight agent cannot build a full travel plan"), nil
	}
	if err := a.sim.wait(ctx); err != nil {
		return types.AgentResult{}, err
	}

	opt := flightOptions[a.sim.intn(len(flightOptions))]
	dest := a.sim.city(task.Payload.Text)
	booking := FlightBooking{
		DepartureCity:      a.sim.cfg.DepartureCity,
		DestinationCity:    dest,
		DepartureDate:      a.sim.cfg.StartDate,
		ReturnDate:         a.sim.cfg.EndDate,
		Airline:            opt.airline,
		FlightNumber:       opt.number,
		TotalPrice:         2 * opt.price,
		BookingReference:   a.sim.reference("FL", dest),
		NumberOfPassengers: 2,
	}
	text := fmt.Sprintf("Flight booked: %s %s from %s to %s, departing %s and returning %s, total $%.2f (ref %s)",
		booking.Airline, booking.FlightNumber, booking.DepartureCity, booking.DestinationCity,
		booking.DepartureDate, booking.ReturnDate, booking.TotalPrice, booking.BookingReference)
	data, err := structured(IDFlightBooking, booking, text)
	if err != nil {
		return types.AgentResult{}, err
	}
	return types.OKResult(task, text, data), nil
}

// =============================================================================
// 🏨 酒店
// =============================================================================

type hotelOption struct {
	name, room string
	price      float64
}

var hotelOptions = []hotelOption{
	{"Hilton", "Deluxe", 200},
	{"Marriott", "Standard", 150},
	{"Hyatt", "Suite", 300},
	{"Sheraton", "Executive", 250},
	{"Holiday Inn", "Standard", 100},
}

// HotelAgent 模拟酒店预订
type HotelAgent struct{ sim *simulator }

// Capability implements Agent.
func (a *HotelAgent) Capability() types.IntentLabel { return types.LabelHotel }

// Handle implements Agent.
func (a *HotelAgent) Handle(ctx context.Context, task types.AgentTask) (types.AgentResult, error) {
	if wantsWholePlan(task) {
		return types.HandoffResult(task, "hotel agent cannot build a full travel plan"), nil
	}
	if err := a.sim.wait(ctx); err != nil {
		return types.AgentResult{}, err
	}

	opt := hotelOptions[a.sim.intn(len(hotelOptions))]
	city := a.sim.city(task.Payload.Text)
	booking := HotelBooking{
		City:             city,
		CheckInDate:      a.sim.cfg.StartDate,
		CheckOutDate:     a.sim.cfg.EndDate,
		HotelName:        opt.name,
		RoomType:         opt.room,
		TotalPrice:       float64(a.sim.days()) * opt.price,
		BookingReference: a.sim.reference("HT", city),
	}
	text := fmt.Sprintf("Hotel booked: %s %s room in %s from %s to %s, total $%.2f (ref %s)",
		booking.HotelName, booking.RoomType, booking.City, booking.CheckInDate,
		booking.CheckOutDate, booking.TotalPrice, booking.BookingReference)
	data, err := structured(IDHotelBooking, booking, text)
	if err != nil {
		return types.AgentResult{}, err
	}
	return types.OKResult(task, text, data), nil
}

// =============================================================================
// 🚗 租车
// =============================================================================

type carOption struct {
	carType, company string
	price            float64
}

var carOptions = []carOption{
	{"Sedan", "Avis", 50},
	{"SUV", "Hertz", 80},
	{"Convertible", "Budget", 100},
	{"Minivan", "Enterprise", 70},
	{"Compact", "Thrifty", 40},
	{"Luxury", "Alamo", 150},
	{"Pickup Truck", "National", 90},
	{"Electric", "Tesla Rentals", 120},
	{"Hybrid", "Green Wheels", 60},
	{"Sports Car", "Exotic Rentals", 200},
}

// CarAgent 模拟租车预订
type CarAgent struct{ sim *simulator }

// Capability implements Agent.
func (a *CarAgent) Capability() types.IntentLabel { return types.LabelCar }

// Handle implements Agent.
func (a *CarAgent) Handle(ctx context.Context, task types.AgentTask) (types.AgentResult, error) {
	if wantsWholePlan(task) {
		return types.HandoffResult(task, "car rental agent cannot build a full travel plan"), nil
	}
	if err := a.sim.wait(ctx); err != nil {
		return types.AgentResult{}, err
	}

	opt := carOptions[a.sim.intn(len(carOptions))]
	city := a.sim.city(task.Payload.Text)
	rental := CarRental{
		RentalCity:       city,
		RentalStartDate:  a.sim.cfg.StartDate,
		RentalEndDate:    a.sim.cfg.EndDate,
		CarType:          opt.carType,
		Company:          opt.company,
		TotalPrice:       float64(a.sim.days()) * opt.price,
		BookingReference: a.sim.reference("CR", city),
	}
	text := fmt.Sprintf("Car rental confirmed: %s from %s in %s, %s to %s, total $%.2f (ref %s)",
		rental.CarType, rental.Company, rental.RentalCity, rental.RentalStartDate,
		rental.RentalEndDate, rental.TotalPrice, rental.BookingReference)
	data, err := structured(IDCarRental, rental, text)
	if err != nil {
		return types.AgentResult{}, err
	}
	return types.OKResult(task, text, data), nil
}

// =============================================================================
// 🎡 活动
// =============================================================================

var activityCatalog = []ActivityDetail{
	{"City walking tour", "sightseeing", "A guided walk through the historic centre"},
	{"Museum pass", "culture", "Skip-the-line entry to the main museums"},
	{"Food market crawl", "food", "Taste local specialities with a guide"},
	{"River cruise", "sightseeing", "An evening cruise past the landmarks"},
	{"Day trip", "excursion", "A full-day trip to the surrounding countryside"},
}

// ActivitiesAgent 模拟活动推荐
type ActivitiesAgent struct{ sim *simulator }

// Capability implements Agent.
func (a *ActivitiesAgent) Capability() types.IntentLabel { return types.LabelActivities }

// Handle implements Agent.
func (a *ActivitiesAgent) Handle(ctx context.Context, task types.AgentTask) (types.AgentResult, error) {
	if err := a.sim.wait(ctx); err != nil {
		return types.AgentResult{}, err
	}

	city := a.sim.city(task.Payload.Text)
	offset := a.sim.intn(len(activityCatalog))
	picks := make([]ActivityDetail, 0, 3)
	names := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		d := activityCatalog[(offset+i)%len(activityCatalog)]
		picks = append(picks, d)
		names = append(names, d.ActivityName)
	}
	acts := Activities{DestinationCity: city, Activities: picks}
	text := fmt.Sprintf("Suggested activities in %s: %s", city, strings.Join(names, ", "))
	data, err := structured(IDActivitiesBooking, acts, text)
	if err != nil {
		return types.AgentResult{}, err
	}
	return types.OKResult(task, text, data), nil
}

// =============================================================================
// 🗺️ 目的地
// =============================================================================

var destinationFacts = map[string]DestinationInfo{
	"paris": {
		City: "Paris", Country: "France",
		Description:        "The capital of France, known for art, fashion and cafe culture.",
		BestTimeToVisit:    "April to June, September to October",
		AverageTemperature: "12°C",
		Currency:           "EUR", Language: "French",
		SimilarDestinations: []string{"Rome", "Vienna", "Barcelona"},
	},
	"tokyo": {
		City: "Tokyo", Country: "Japan",
		Description:        "A dense metropolis mixing neon districts and quiet shrines.",
		BestTimeToVisit:    "March to May, October to November",
		AverageTemperature: "16°C",
		Currency:           "JPY", Language: "Japanese",
		SimilarDestinations: []string{"Seoul", "Osaka", "Taipei"},
	},
}

// DestinationAgent 模拟目的地信息查询
type DestinationAgent struct{ sim *simulator }

// Capability implements Agent.
func (a *DestinationAgent) Capability() types.IntentLabel { return types.LabelDestination }

// Handle implements Agent.
func (a *DestinationAgent) Handle(ctx context.Context, task types.AgentTask) (types.AgentResult, error) {
	if err := a.sim.wait(ctx); err != nil {
		return types.AgentResult{}, err
	}

	city := a.sim.city(task.Payload.Text)
	info, ok := destinationFacts[strings.ToLower(city)]
	if !ok {
		info = DestinationInfo{
			City:        city,
			Description: fmt.Sprintf("%s is a popular destination.", city),
		}
	}
	text := fmt.Sprintf("About %s: %s", info.City, info.Description)
	if info.BestTimeToVisit != "" {
		text += fmt.Sprintf(" Best time to visit: %s.", info.BestTimeToVisit)
	}
	data, err := structured(IDDestinationInfo, info, text)
	if err != nil {
		return types.AgentResult{}, err
	}
	return types.OKResult(task, text, data), nil
}

// =============================================================================
// 👋 兜底
// =============================================================================

// GreetingDetector 判断文本是否为纯问候
type GreetingDetector func(text string) bool

// GeneralAgent 处理问候与无法归类的请求
type GeneralAgent struct {
	isGreeting GreetingDetector
}

// Capability implements Agent.
func (a *GeneralAgent) Capability() types.IntentLabel { return types.LabelGeneral }

// Handle implements Agent.
func (a *GeneralAgent) Handle(_ context.Context, task types.AgentTask) (types.AgentResult, error) {
	if a.isGreeting != nil && a.isGreeting(task.Payload.Text) {
		data, err := structured(IDDefault, Greeter{Greeting: GreetingText}, "User greeting detected: "+task.Payload.Text)
		if err != nil {
			return types.AgentResult{}, err
		}
		return types.OKResult(task, GreetingText, data), nil
	}
	text := "I can help with flights, hotels, car rentals, activities and destination information. " +
		"Tell me where you would like to go."
	return types.OKResult(task, text, nil), nil
}

// NewTravelAgents builds the built-in agent population sharing one simulator.
func NewTravelAgents(cfg SimulationConfig, isGreeting GreetingDetector, logger *zap.Logger) Set {
	sim := newSimulator(cfg, logger)
	return Set{
		IDFlightBooking:     &FlightAgent{sim: sim},
		IDHotelBooking:      &HotelAgent{sim: sim},
		IDCarRental:         &CarAgent{sim: sim},
		IDActivitiesBooking: &ActivitiesAgent{sim: sim},
		IDDestinationInfo:   &DestinationAgent{sim: sim},
		IDDefault:           &GeneralAgent{isGreeting: isGreeting},
	}
}
