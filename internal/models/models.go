package models

import "time"

type Status struct {
	State       string     `json:"state"`
	LoadID      string     `json:"load_id,omitempty"`
	Rows        int        `json:"rows"`
	Fields      []string   `json:"fields,omitempty"`
	Format      string     `json:"format,omitempty"`
	Container   string     `json:"container,omitempty"`
	Fingerprint string     `json:"fingerprint,omitempty"`
	Extrusion   bool       `json:"extrusion"`
	Styling     bool       `json:"styling"`
	Error       string     `json:"error,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	LoadedAt    *time.Time `json:"loaded_at,omitempty"`
}

type Building struct {
	Index     int            `json:"index"`
	Elevation float64        `json:"elevation"`
	FillColor [4]uint8       `json:"fill_color"`
	Fields    map[string]any `json:"fields,omitempty"`
}

type Geometry struct {
	Index    int    `json:"index"`
	Field    string `json:"field"`
	Geometry any    `json:"geometry"`
}

type AttributePage struct {
	Offset     int        `json:"offset"`
	Limit      int        `json:"limit"`
	Total      int        `json:"total"`
	Elevations []float64  `json:"elevations"`
	FillColors [][4]uint8 `json:"fill_colors"`
}

type Bounds struct {
	MinLon float64 `json:"min_lon"`
	MinLat float64 `json:"min_lat"`
	MaxLon float64 `json:"max_lon"`
	MaxLat float64 `json:"max_lat"`
}

type Viewport struct {
	Bounds  Bounds `json:"bounds"`
	Indices []int  `json:"indices"`
	Total   int    `json:"total"`
}

type CategoryStat struct {
	Category      string   `json:"category"`
	Buildings     int      `json:"buildings"`
	MeanElevation float64  `json:"mean_elevation"`
	FillColor     [4]uint8 `json:"fill_color"`
}

type Summary struct {
	TotalBuildings int            `json:"total_buildings"`
	Extent         *Bounds        `json:"extent,omitempty"`
	Categories     []CategoryStat `json:"categories"`
}
