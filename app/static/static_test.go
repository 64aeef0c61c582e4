package static

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range files {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestParseZip(t *testing.T) {
	buf := buildZip(t, map[string]string{
		// UTF-8 BOM in front of the header line, as some feeds ship it.
		"agency.txt": "\xef\xbb\xbfagency_id,agency_name,agency_url,agency_timezone\n" +
			"SNCF,SNCF Voyageurs,https://www.sncf.com,Europe/Paris\n",
		"stops.txt": "stop_id,stop_name,stop_lat,stop_lon,parent_station\n" +
			"S1,Gare de Lyon,48.844,2.374,P1\n" +
			"S2,Gare du Nord,48.880,2.355,\n",
		"routes.txt": "route_id,agency_id,route_short_name,route_long_name,route_type\n" +
			"R1,SNCF,TER,TER Bourgogne,2\n",
		"trips.txt": "trip_id,route_id,service_id,trip_headsign,direction_id\n" +
			"T1,R1,SVC1,Dijon,0\n" +
			"T2,R1,SVC1,Paris,\n",
		"calendar.txt": "service_id,monday\nSVC1,1\n", // ignored
	})

	ds, err := ParseZip(buf)
	require.NoError(t, err)

	require.Len(t, ds.Agencies, 1)
	assert.Equal(t, AgencyCSV{
		ID: "SNCF", Name: "SNCF Voyageurs", URL: "https://www.sncf.com", Timezone: "Europe/Paris",
	}, ds.Agencies[0])

	require.Len(t, ds.Stops, 2)
	assert.Equal(t, 48.844, ds.Stops[0].Lat)
	assert.Empty(t, ds.Stops[1].ParentStation)

	require.Len(t, ds.Routes, 1)
	assert.Equal(t, 2, ds.Routes[0].Type)

	require.Len(t, ds.Trips, 2)
	assert.Equal(t, "Dijon", ds.Trips[0].Headsign)
}

func TestParseZipNestedDirectory(t *testing.T) {
	buf := buildZip(t, map[string]string{
		"export/agency.txt": "agency_id,agency_name,agency_url,agency_timezone\n" +
			"SNCF,SNCF,https://www.sncf.com,Europe/Paris\n",
	})

	ds, err := ParseZip(buf)
	require.NoError(t, err)
	assert.Len(t, ds.Agencies, 1)
}

func TestParseZipNotAZip(t *testing.T) {
	_, err := ParseZip([]byte("definitely not a zip archive"))
	require.Error(t, err)
}

func TestBatchesOrderAndDefaults(t *testing.T) {
	ds := &Dataset{
		Agencies: []AgencyCSV{{ID: "SNCF"}},
		Stops:    []StopCSV{{ID: "S1"}, {ID: "S2", ParentStation: "P1"}},
		Routes:   []RouteCSV{{ID: "R1", AgencyID: "SNCF"}},
		Trips:    []TripCSV{{ID: "T1", RouteID: "R1"}, {ID: "T2", RouteID: "R1", DirectionID: "1"}},
	}

	batches := Batches(ds)
	require.Len(t, batches, 4)

	// Parents before children.
	assert.Equal(t, "agency", batches[0].Table)
	assert.Equal(t, "stops", batches[1].Table)
	assert.Equal(t, "routes", batches[2].Table)
	assert.Equal(t, "trips", batches[3].Table)

	// Missing parent_station gets the sentinel value.
	assert.Equal(t, "No_parent_station", batches[1].Rows[0][4])
	assert.Equal(t, "P1", batches[1].Rows[1][4])

	// Missing direction_id maps to -1.
	assert.Equal(t, -1, batches[3].Rows[0][4])
	assert.Equal(t, 1, batches[3].Rows[1][4])

	for _, b := range batches {
		assert.NotEmpty(t, b.KeyCols, b.Table)
	}
}

func TestBatchesEmptyDataset(t *testing.T) {
	batches := Batches(&Dataset{})
	require.Len(t, batches, 4)
	for _, b := range batches {
		assert.Empty(t, b.Rows)
	}
}
