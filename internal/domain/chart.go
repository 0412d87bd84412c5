package domain

// Chart is the natal chart (kundali) computed for a profile.
// It is immutable once attached to a session.
type Chart struct {
	UserName          string        `json:"user_name"`
	BirthDetails      BirthDetails  `json:"birth_details"`
	Location          Location      `json:"location"`
	Settings          ChartSettings `json:"chart_settings"`
	KeyPositions      KeyPositions  `json:"key_positions"`
	Planets           []Planet      `json:"planets"`
	Houses            []House       `json:"houses"`
	Aspects           []Aspect      `json:"planetary_aspects"`
	ConsolidatedChart []SignGroup   `json:"consolidated_chart,omitempty"`
	VimshottariDasa   []DasaPeriod  `json:"vimshottari_dasa"`
}

// BirthDetails echoes the parsed birth moment.
type BirthDetails struct {
	BirthDate  string `json:"birth_date"`
	BirthTime  string `json:"birth_time"`
	BirthPlace string `json:"birth_place"`
	Year       int    `json:"year"`
	Month      int    `json:"month"`
	Day        int    `json:"day"`
	Hour       int    `json:"hour"`
	Minute     int    `json:"minute"`
	Second     int    `json:"second"`
}

// Location is the geocoded birth place.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	UTCOffset string  `json:"utc_offset"`
}

// ChartSettings records how the chart was calculated.
type ChartSettings struct {
	Ayanamsa    string `json:"ayanamsa"`
	HouseSystem string `json:"house_system"`
}

// Position describes one of the key chart points.
type Position struct {
	Sign          string   `json:"sign,omitempty"`
	Nakshatra     string   `json:"nakshatra,omitempty"`
	NakshatraPada int      `json:"nakshatra_pada,omitempty"`
	NakshatraLord string   `json:"nakshatra_lord,omitempty"`
	RasiLord      string   `json:"rasi_lord,omitempty"`
	SubLord       string   `json:"sub_lord,omitempty"`
	SubSubLord    string   `json:"sub_sub_lord,omitempty"`
	Longitude     *float64 `json:"longitude,omitempty"`
}

// KeyPositions holds the Sun, Moon and Ascendant of the native.
type KeyPositions struct {
	Sun       Position `json:"sun"`
	Moon      Position `json:"moon"`
	Ascendant Position `json:"ascendant"`
	LagnaLord string   `json:"lagna_lord,omitempty"`
}

// Planet is a single planetary placement.
type Planet struct {
	Object        string  `json:"object"`
	Rasi          string  `json:"rasi"`
	IsRetrograde  bool    `json:"is_retrograde"`
	LongitudeDeg  float64 `json:"longitude_dec_deg"`
	SignLonDMS    string  `json:"sign_lon_dms"`
	SignLonDeg    float64 `json:"sign_lon_dec_deg"`
	LatDMS        string  `json:"lat_dms,omitempty"`
	Nakshatra     string  `json:"nakshatra,omitempty"`
	RasiLord      string  `json:"rasi_lord,omitempty"`
	NakshatraLord string  `json:"nakshatra_lord,omitempty"`
	SubLord       string  `json:"sub_lord,omitempty"`
	SubSubLord    string  `json:"sub_sub_lord,omitempty"`
	HouseNr       *int    `json:"house_nr,omitempty"`
}

// House is a single house cusp.
type House struct {
	Object        string  `json:"object"`
	HouseNr       int     `json:"house_nr"`
	Rasi          string  `json:"rasi"`
	LongitudeDeg  float64 `json:"longitude_dec_deg"`
	SignLonDMS    string  `json:"sign_lon_dms"`
	SignLonDeg    float64 `json:"sign_lon_dec_deg"`
	DegSize       float64 `json:"deg_size"`
	Nakshatra     string  `json:"nakshatra,omitempty"`
	RasiLord      string  `json:"rasi_lord,omitempty"`
	NakshatraLord string  `json:"nakshatra_lord,omitempty"`
	SubLord       string  `json:"sub_lord,omitempty"`
	SubSubLord    string  `json:"sub_sub_lord,omitempty"`
}

// Aspect is a planetary aspect between two objects.
type Aspect struct {
	P1         string  `json:"p1"`
	P2         string  `json:"p2"`
	AspectType string  `json:"aspect_type"`
	AspectDeg  int     `json:"aspect_deg"`
	AspectOrb  float64 `json:"aspect_orb"`
}

// SignGroup lists every chart object that falls in one sign.
type SignGroup struct {
	Rasi    string   `json:"rasi"`
	Objects []string `json:"objects"`
}

// DasaPeriod is a Vimshottari major period. Order is significant.
type DasaPeriod struct {
	Name    string         `json:"name"`
	Start   string         `json:"start"`
	End     string         `json:"end"`
	Bhuktis []BhuktiPeriod `json:"bhuktis,omitempty"`
}

// BhuktiPeriod is a sub-period inside a DasaPeriod.
type BhuktiPeriod struct {
	Name  string `json:"name"`
	Start string `json:"start"`
	End   string `json:"end"`
}

// NativeSigns returns the Sun, Moon and Ascendant signs of the chart.
func (c *Chart) NativeSigns() []string {
	if c == nil {
		return nil
	}
	return []string{c.KeyPositions.Sun.Sign, c.KeyPositions.Moon.Sign, c.KeyPositions.Ascendant.Sign}
}

// Summary is the short form used by session info responses.
func (c *Chart) Summary() ChartSummary {
	if c == nil {
		return ChartSummary{}
	}
	return ChartSummary{
		SunSign:       c.KeyPositions.Sun.Sign,
		MoonSign:      c.KeyPositions.Moon.Sign,
		AscendantSign: c.KeyPositions.Ascendant.Sign,
		LagnaLord:     c.KeyPositions.LagnaLord,
	}
}

// ChartSummary is the key-position digest of a chart.
type ChartSummary struct {
	SunSign       string `json:"sun_sign"`
	MoonSign      string `json:"moon_sign"`
	AscendantSign string `json:"ascendant_sign"`
	LagnaLord     string `json:"lagna_lord"`
}
