package grid

import "math"

const degToRad = math.Pi / 180

// GreatCircleDeg returns the great-circle arc between two points in
// degrees. This is the grid's distance metric: detect radii and stitch
// displacements are expressed in degrees of arc, which stays meaningful
// from the tropics to high latitudes where raw longitude differences
// do not.
func GreatCircleDeg(lat1, lon1, lat2, lon2 float64) float64 {
	if lat1 == lat2 && lon1 == lon2 {
		return 0
	}
	phi1 := lat1 * degToRad
	phi2 := lat2 * degToRad
	dphi := (lat2 - lat1) * degToRad
	dlam := WrapLonDelta(lon2-lon1) * degToRad

	sinDphi := math.Sin(dphi / 2)
	sinDlam := math.Sin(dlam / 2)
	a := sinDphi*sinDphi + math.Cos(phi1)*math.Cos(phi2)*sinDlam*sinDlam
	if a > 1 {
		a = 1
	}
	return 2 * math.Asin(math.Sqrt(a)) / degToRad
}

// WrapLonDelta normalises a longitude difference to (-180, 180],
// handling the 0/360 discontinuity.
func WrapLonDelta(dlon float64) float64 {
	d := math.Mod(dlon+180, 360)
	if d < 0 {
		d += 360
	}
	return d - 180
}

// WrapLon normalises a longitude to [0, 360).
func WrapLon(lon float64) float64 {
	l := math.Mod(lon, 360)
	if l < 0 {
		l += 360
	}
	return l
}
