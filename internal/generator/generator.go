// Package generator produces synthetic transaction batches for demo and
// test ingestion. All transactions in a batch fall on a single day, in
// chronological order.
package generator

import (
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/banking/compliance-sentinel/internal/domain"
)

var amountRanges = map[domain.IncomeLevel][2]float64{
	domain.IncomeLow:    {20, 200},
	domain.IncomeMedium: {50, 500},
	domain.IncomeHigh:   {100, 2000},
}

var currencies = []string{"ETH", "BTC", "USDT", "SOL", "ADA", "DOT", "AVAX"}

var txTypes = []string{"deposit", "withdrawal", "transfer"}

var countryCities = map[string][]string{
	"MT": {"Valletta", "Sliema", "St. Julian's", "Mdina"},
	"IT": {"Rome", "Milan", "Florence", "Naples"},
	"DE": {"Berlin", "Munich", "Frankfurt", "Hamburg"},
	"GB": {"London", "Manchester", "Edinburgh", "Birmingham"},
	"AE": {"Dubai", "Abu Dhabi", "Sharjah", "Ajman"},
	"SA": {"Riyadh", "Jeddah", "Dammam", "Mecca"},
	"BH": {"Manama", "Riffa", "Muharraq"},
	"PK": {"Islamabad", "Karachi", "Lahore"},
	"KY": {"George Town", "West Bay", "Bodden Town"},
	"US": {"New York", "Miami", "Los Angeles", "Chicago"},
	"KP": {"Pyongyang", "Hamhung", "Chongjin"},
	"IR": {"Tehran", "Isfahan", "Mashhad"},
	"SY": {"Damascus", "Aleppo", "Homs"},
	"CU": {"Havana", "Santiago de Cuba", "Camaguey"},
	"RU": {"Moscow", "Saint Petersburg", "Novosibirsk"},
	"CN": {"Beijing", "Shanghai", "Shenzhen"},
	"JP": {"Tokyo", "Osaka", "Kyoto"},
	"IN": {"New Delhi", "Mumbai", "Bangalore"},
	"SG": {"Singapore"},
	"NG": {"Abuja", "Lagos", "Kano"},
	"ZA": {"Cape Town", "Johannesburg", "Pretoria"},
	"JM": {"Kingston", "Montego Bay"},
	"QA": {"Doha"},
	"FR": {"Paris", "Lyon", "Marseille"},
	"ES": {"Madrid", "Barcelona", "Seville"},
}

// Options controls batch generation. Zero values mean "use the profile's
// income-based defaults".
type Options struct {
	NumTransactions int
	MinAmount       *float64
	MaxAmount       *float64
	Variance        *float64
	Countries       []string
	CurrencyOver    string
	CityOver        string
}

// Generator creates synthetic batches. The random source is injectable so
// tests get reproducible output.
type Generator struct {
	rng *rand.Rand
	now func() time.Time
}

// New creates a generator seeded from the current time.
func New() *Generator {
	return &Generator{
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
		now: time.Now,
	}
}

// NewSeeded creates a deterministic generator for tests.
func NewSeeded(seed int64, now func() time.Time) *Generator {
	return &Generator{rng: rand.New(rand.NewSource(seed)), now: now}
}

// Generate produces a single-day batch for the user, chronologically
// ordered. Countries come from opts.Countries when supplied, otherwise
// from the profile's historical set.
func (g *Generator) Generate(profile *domain.UserProfile, opts Options) []domain.RawTransaction {
	n := opts.NumTransactions
	if n <= 0 {
		n = 5
	}

	countryPool := opts.Countries
	if len(countryPool) == 0 {
		countryPool = profile.HistoricalCountries
	}
	if len(countryPool) == 0 {
		countryPool = []string{profile.Country}
	}

	defaultRange, ok := amountRanges[profile.IncomeLevel]
	if !ok {
		defaultRange = [2]float64{50, 500}
	}

	timestamps := g.timestampsForToday(n)

	transactions := make([]domain.RawTransaction, 0, n)
	for i := 0; i < n; i++ {
		country := countryPool[g.rng.Intn(len(countryPool))]

		ccy := currencies[g.rng.Intn(len(currencies))]
		if opts.CurrencyOver != "" {
			ccy = opts.CurrencyOver
		}
		city := g.cityForCountry(country)
		if opts.CityOver != "" {
			city = opts.CityOver
		}

		transactions = append(transactions, domain.RawTransaction{
			UserID:             profile.UserID,
			Timestamp:          timestamps[i],
			TransactionAmount:  g.amount(opts, defaultRange),
			TransactionCcy:     ccy,
			TransactionType:    txTypes[g.rng.Intn(len(txTypes))],
			TransactionCountry: country,
			TransactionCity:    city,
		})
	}
	return transactions
}

func (g *Generator) cityForCountry(country string) string {
	if cities, ok := countryCities[country]; ok {
		return cities[g.rng.Intn(len(cities))]
	}
	return fmt.Sprintf("%s City", country)
}

func (g *Generator) amount(opts Options, defaultRange [2]float64) float64 {
	switch {
	case opts.MinAmount != nil && opts.MaxAmount != nil:
		lo, hi := *opts.MinAmount, *opts.MaxAmount
		if opts.Variance != nil && *opts.Variance > 0 {
			mid := (lo + hi) / 2
			v := g.rng.NormFloat64()**opts.Variance + mid
			if v < lo {
				v = lo
			}
			if v > hi {
				v = hi
			}
			return round2(v)
		}
		return round2(lo + g.rng.Float64()*(hi-lo))

	case opts.MinAmount != nil:
		lo := *opts.MinAmount
		hi := lo * 2
		if defaultRange[1] > hi {
			hi = defaultRange[1]
		}
		return round2(lo + g.rng.Float64()*(hi-lo))

	case opts.MaxAmount != nil:
		hi := *opts.MaxAmount
		lo := defaultRange[0]
		if hi*0.1 < lo {
			lo = hi * 0.1
		}
		return round2(lo + g.rng.Float64()*(hi-lo))

	default:
		return round2(defaultRange[0] + g.rng.Float64()*(defaultRange[1]-defaultRange[0]))
	}
}

// timestampsForToday spreads n timestamps across today's business hours,
// starting at 08:00 UTC, then sorts them.
func (g *Generator) timestampsForToday(n int) []string {
	base := g.now().UTC().Truncate(24 * time.Hour).Add(8 * time.Hour)

	hoursSpread := n
	if hoursSpread > 12 {
		hoursSpread = 12
	}
	if hoursSpread < 1 {
		hoursSpread = 1
	}
	totalMinutes := hoursSpread * 60

	timestamps := make([]string, 0, n)
	for i := 0; i < n; i++ {
		offset := (i * totalMinutes) / n
		jitter := totalMinutes / (n + 1)
		if jitter < 1 {
			jitter = 1
		}
		offset += g.rng.Intn(jitter)
		ts := base.Add(time.Duration(offset)*time.Minute + time.Duration(g.rng.Intn(60))*time.Second)
		timestamps = append(timestamps, ts.Format(time.RFC3339))
	}
	sort.Strings(timestamps)
	return timestamps
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}
