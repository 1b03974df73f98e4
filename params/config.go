package params

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("invalid config")

type Market struct {
	FeeRate       float64 `yaml:"fee_rate"`
	StepsPerDay   uint64  `yaml:"steps_per_day"`
	TradeLockDays uint64  `yaml:"trade_lock_days"`
	// BalanceCap bounds opening balances, in dollars
	BalanceCap int64 `yaml:"balance_cap"`
}

type Simulation struct {
	NumAgents int    `yaml:"num_agents"`
	NumSteps  uint64 `yaml:"num_steps"`
	Seed      int64  `yaml:"seed"`
}

type Drops struct {
	BaseChance  float64 `yaml:"base_chance"`
	MaxPerWeek  int     `yaml:"max_per_week"`
	ResetDay    int     `yaml:"reset_day"` // 0 = Monday
	TradeLockOn bool    `yaml:"trade_lock_on"`
}

// Normal describes a normal distribution clipped to [Min, Max]
type Normal struct {
	Mean   float64 `yaml:"mean"`
	StdDev float64 `yaml:"std_dev"`
	Min    float64 `yaml:"min"`
	Max    float64 `yaml:"max"`
}

type Population struct {
	// Weights by agent kind: novice, trader, investor, farmer
	Weights map[string]float64 `yaml:"weights"`
	// Balance is in dollars
	Balance  Normal `yaml:"balance"`
	FarmSize Normal `yaml:"farm_size"`
}

// Item is one entry of the drop pool
type Item struct {
	Name     string  `yaml:"name"`
	Category string  `yaml:"category"`
	Rarity   string  `yaml:"rarity"`
	Exterior string  `yaml:"exterior,omitempty"`
	Weight   float64 `yaml:"weight"`
}

type Storage struct {
	ArchivePath string `yaml:"archive_path"` // pebble directory, empty disables the archive
	ResultsPath string `yaml:"results_path"` // sqlite file, empty disables results
}

type Log struct {
	File  string `yaml:"file"`
	Level string `yaml:"level"`
}

type Sweep struct {
	FeeRates []float64 `yaml:"fee_rates"`
	Runs     int       `yaml:"runs"`    // seeds per fee rate
	Workers  int       `yaml:"workers"` // concurrent runs
	CSVPath  string    `yaml:"csv_path"`
}

type Config struct {
	Market     Market     `yaml:"market"`
	Simulation Simulation `yaml:"simulation"`
	Drops      Drops      `yaml:"drops"`
	Population Population `yaml:"population"`
	Items      []Item     `yaml:"items"`
	Storage    Storage    `yaml:"storage"`
	Log        Log        `yaml:"log"`
	Sweep      Sweep      `yaml:"sweep"`
}

func Default() Config {
	return Config{
		Market: Market{
			FeeRate:       0.15,
			StepsPerDay:   1000,
			TradeLockDays: 7,
			BalanceCap:    2000,
		},
		Simulation: Simulation{
			NumAgents: 1000,
			NumSteps:  75_000,
			Seed:      1,
		},
		Drops: Drops{
			BaseChance:  0.6,
			MaxPerWeek:  1,
			ResetDay:    2, // Wednesday
			TradeLockOn: true,
		},
		Population: Population{
			Weights: map[string]float64{
				"novice":   0.4,
				"trader":   0.2,
				"investor": 0.3,
				"farmer":   0.1,
			},
			Balance:  Normal{Mean: 650, StdDev: 300, Min: 0, Max: 2000},
			FarmSize: Normal{Mean: 100, StdDev: 50, Min: 1, Max: 1000},
		},
		Items: []Item{
			{Name: "Case A", Category: "Container", Rarity: "BaseGrade", Weight: 1},
		},
		Storage: Storage{
			ArchivePath: "./data/archive",
			ResultsPath: "./data/results.db",
		},
		Log: Log{Level: "info"},
		Sweep: Sweep{
			FeeRates: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9},
			Runs:     100,
			Workers:  4,
			CSVPath:  "results.csv",
		},
	}
}

// LoadScenario overlays a YAML scenario file onto cfg. Keys missing from the
// file keep their current values.
func LoadScenario(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read scenario: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse scenario %s: %w", path, err)
	}
	return nil
}

// LoadFromEnv loads configuration from .env file (if exists), an optional
// scenario file and environment variables
// Priority: ENV > scenario file > .env file > defaults
//
// The .env file is read into a map rather than exported to the process, so
// a scenario file can still override it. SCENARIO_FILE may be set in either.
func LoadFromEnv(envPath string) (Config, error) {
	cfg := Default()

	if envPath == "" {
		envPath = ".env"
	}
	dotenv, err := godotenv.Read(envPath)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("%w: read %s: %w", ErrInvalidConfig, envPath, err)
	}
	fromFile := func(key string) string { return dotenv[key] }

	if err := applyEnv(&cfg, fromFile); err != nil {
		return Config{}, err
	}

	path := os.Getenv("SCENARIO_FILE")
	if path == "" {
		path = fromFile("SCENARIO_FILE")
	}
	if path != "" {
		if err := LoadScenario(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg, os.Getenv); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// applyEnv overrides cfg with every non-empty variable lookup returns
func applyEnv(cfg *Config, lookup func(string) string) error {
	var errs []error
	setFloat := func(key string, dst *float64) {
		if v := lookup(key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = f
		}
	}
	setUint := func(key string, dst *uint64) {
		if v := lookup(key); v != "" {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	setInt := func(key string, dst *int) {
		if v := lookup(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	setString := func(key string, dst *string) {
		if v := lookup(key); v != "" {
			*dst = v
		}
	}

	setFloat("MARKET_FEE_RATE", &cfg.Market.FeeRate)
	setUint("STEPS_PER_DAY", &cfg.Market.StepsPerDay)
	setUint("TRADE_LOCK_DAYS", &cfg.Market.TradeLockDays)
	setInt("NUM_AGENTS", &cfg.Simulation.NumAgents)
	setUint("NUM_STEPS", &cfg.Simulation.NumSteps)
	setFloat("BASE_DROP_CHANCE", &cfg.Drops.BaseChance)
	setInt("MAX_DROPS_PER_WEEK", &cfg.Drops.MaxPerWeek)
	setInt("SWEEP_RUNS", &cfg.Sweep.Runs)
	setInt("SWEEP_WORKERS", &cfg.Sweep.Workers)

	if seed := lookup("SEED"); seed != "" {
		n, err := strconv.ParseInt(seed, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("SEED: %w", err))
		} else {
			cfg.Simulation.Seed = n
		}
	}
	if lock := lookup("TRADE_LOCK_ON"); lock != "" {
		cfg.Drops.TradeLockOn = lock == "true"
	}

	// Fee rates from comma-separated list
	// Example: "0.1,0.2,0.3"
	if rates := lookup("SWEEP_FEE_RATES"); rates != "" {
		parsed, err := parseFloats(rates)
		if err != nil {
			errs = append(errs, fmt.Errorf("SWEEP_FEE_RATES: %w", err))
		} else {
			cfg.Sweep.FeeRates = parsed
		}
	}

	setString("ARCHIVE_PATH", &cfg.Storage.ArchivePath)
	setString("RESULTS_PATH", &cfg.Storage.ResultsPath)
	setString("SWEEP_CSV_PATH", &cfg.Sweep.CSVPath)
	setString("LOG_FILE", &cfg.Log.File)
	setString("LOG_LEVEL", &cfg.Log.Level)

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

func parseFloats(list string) ([]float64, error) {
	var out []float64
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		f, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// Validate checks configuration validity
func (c Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
	}

	if c.Market.FeeRate < 0 || c.Market.FeeRate >= 1 {
		return invalid("fee rate %v outside [0, 1)", c.Market.FeeRate)
	}
	if c.Market.StepsPerDay == 0 {
		return invalid("steps per day must be positive")
	}
	if c.Market.BalanceCap < 0 {
		return invalid("balance cap cannot be negative")
	}
	if c.Simulation.NumAgents < 1 {
		return invalid("need at least one agent")
	}
	if c.Drops.BaseChance < 0 || c.Drops.BaseChance > 1 {
		return invalid("base drop chance %v outside [0, 1]", c.Drops.BaseChance)
	}
	if c.Drops.MaxPerWeek < 0 {
		return invalid("max drops per week cannot be negative")
	}
	if c.Drops.ResetDay < 0 || c.Drops.ResetDay > 6 {
		return invalid("reset day %d outside 0..6", c.Drops.ResetDay)
	}

	var total float64
	for kind, w := range c.Population.Weights {
		switch kind {
		case "novice", "trader", "investor", "farmer":
		default:
			return invalid("unknown agent kind %q", kind)
		}
		if w < 0 {
			return invalid("negative weight for %s", kind)
		}
		total += w
	}
	if total <= 0 {
		return invalid("agent weights must sum to a positive value")
	}
	for name, n := range map[string]Normal{"balance": c.Population.Balance, "farm_size": c.Population.FarmSize} {
		if n.StdDev < 0 || n.Min > n.Max {
			return invalid("%s distribution: std_dev %v, range [%v, %v]", name, n.StdDev, n.Min, n.Max)
		}
	}
	if c.Population.Balance.Min < 0 {
		return invalid("balances cannot be negative")
	}
	if c.Market.BalanceCap > 0 && c.Population.Balance.Max > float64(c.Market.BalanceCap) {
		return invalid("balance distribution max %v above cap %d", c.Population.Balance.Max, c.Market.BalanceCap)
	}
	if c.Population.FarmSize.Min < 1 {
		return invalid("farms need at least one account")
	}

	seen := make(map[string]bool)
	for _, it := range c.Items {
		if it.Name == "" {
			return invalid("item without a name")
		}
		if it.Weight < 0 {
			return invalid("item %q has a negative weight", it.Name)
		}
		key := it.Name + "|" + it.Exterior
		if seen[key] {
			return invalid("item %q listed twice", it.Name)
		}
		seen[key] = true
	}

	for _, r := range c.Sweep.FeeRates {
		if r < 0 || r >= 1 {
			return invalid("sweep fee rate %v outside [0, 1)", r)
		}
	}
	if c.Sweep.Runs < 0 || c.Sweep.Workers < 0 {
		return invalid("sweep runs and workers cannot be negative")
	}
	return nil
}
