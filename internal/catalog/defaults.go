package catalog

// Built-in content type IDs.
const (
	ContentTypeGML        = "eu.esdihumboldt.hale.io.gml"
	ContentTypeXML        = "eu.esdihumboldt.hale.io.xml"
	ContentTypeGeoJSON    = "eu.esdihumboldt.hale.io.geojson"
	ContentTypeJSON       = "eu.esdihumboldt.hale.io.json"
	ContentTypeShapefile  = "eu.esdihumboldt.hale.io.shp"
	ContentTypeCSV        = "eu.esdihumboldt.hale.io.csv"
	ContentTypeGeoPackage = "eu.esdihumboldt.hale.io.geopackage"
)

// Default returns a catalog with the common hale providers and content types.
func Default() *Catalog {
	c := New()
	for _, ct := range []ContentType{
		{ID: ContentTypeGML, Extensions: []string{"gml"}},
		{ID: ContentTypeXML, Extensions: []string{"xml"}},
		{ID: ContentTypeGeoJSON, Extensions: []string{"geojson", "json"}},
		{ID: ContentTypeJSON, Extensions: []string{"json"}},
		{ID: ContentTypeShapefile, Extensions: []string{"shp"}},
		{ID: ContentTypeCSV, Extensions: []string{"csv", "txt"}},
		{ID: ContentTypeGeoPackage, Extensions: []string{"gpkg"}},
	} {
		c.AddContentType(ct)
	}

	for _, p := range []Provider{
		{ID: "eu.esdihumboldt.hale.io.gml.reader", Name: "GML", ContentTypes: []string{ContentTypeGML, ContentTypeXML}},
		{ID: "eu.esdihumboldt.hale.io.gml.writer", Name: "GML", ContentTypes: []string{ContentTypeGML}, Writer: true},
		{ID: "eu.esdihumboldt.hale.io.gml.xplan.writer", Name: "XPlanGML", ContentTypes: []string{ContentTypeGML}, Writer: true},
		{ID: "eu.esdihumboldt.hale.io.gml.inspire.writer", Name: "INSPIRE SpatialDataSet", ContentTypes: []string{ContentTypeGML, ContentTypeXML}, Writer: true},
		{ID: "eu.esdihumboldt.hale.io.geojson.writer", Name: "GeoJSON", ContentTypes: []string{ContentTypeGeoJSON}, Writer: true},
		{ID: "eu.esdihumboldt.hale.io.json.writer", Name: "JSON", ContentTypes: []string{ContentTypeJSON}, Writer: true},
		{ID: "eu.esdihumboldt.hale.io.shape.writer", Name: "Shapefile", ContentTypes: []string{ContentTypeShapefile}, Writer: true},
		{ID: "eu.esdihumboldt.hale.io.csv.writer.instance", Name: "CSV", ContentTypes: []string{ContentTypeCSV}, Writer: true},
		{ID: "eu.esdihumboldt.hale.io.geopackage.writer", Name: "GeoPackage", ContentTypes: []string{ContentTypeGeoPackage}, Writer: true},
	} {
		c.AddProvider(p)
	}
	return c
}
