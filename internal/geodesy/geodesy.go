// Package geodesy computes ellipsoidal distances and bearings on WGS-84.
package geodesy

import (
	"log"
	"math"
)

// WGS-84 ellipsoid parameters.
const (
	semiMajor  = 6378137.0
	semiMinor  = 6356752.314245
	flattening = 1 / 298.257223563
)

const (
	maxIterations = 200
	convergence   = 1e-12
)

// Result holds the outcome of an inverse geodesic computation.
// Distance is in metres, bearings in degrees within [0, 360).
type Result struct {
	Distance       float64
	InitialBearing float64
	FinalBearing   float64
}

// Inverse solves the inverse geodesic problem between two points given in
// decimal degrees. It uses Vincenty's iterative method; when the iteration
// fails to converge (nearly antipodal points) it falls back to Lambert's
// non-iterative ellipsoidal approximation and logs the fallback.
//
// The result is undefined for coincident points; callers must guard.
func Inverse(lat1, lon1, lat2, lon2 float64) Result {
	if r, ok := vincenty(lat1, lon1, lat2, lon2); ok {
		return r
	}
	log.Printf("geodesy: vincenty did not converge for (%f,%f)-(%f,%f), using lambert fallback",
		lat1, lon1, lat2, lon2)
	return lambert(lat1, lon1, lat2, lon2)
}

// Distance returns the geodesic distance in metres between two points.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	return Inverse(lat1, lon1, lat2, lon2).Distance
}

func vincenty(lat1, lon1, lat2, lon2 float64) (Result, bool) {
	phi1 := radians(lat1)
	phi2 := radians(lat2)
	l := radians(lon2 - lon1)

	u1 := math.Atan((1 - flattening) * math.Tan(phi1))
	u2 := math.Atan((1 - flattening) * math.Tan(phi2))
	sinU1, cosU1 := math.Sincos(u1)
	sinU2, cosU2 := math.Sincos(u2)

	lambda := l
	var sinLambda, cosLambda float64
	var sinSigma, cosSigma, sigma float64
	var cosSqAlpha, cos2SigmaM float64

	converged := false
	for i := 0; i < maxIterations; i++ {
		sinLambda, cosLambda = math.Sincos(lambda)
		sinSigma = math.Sqrt(
			(cosU2*sinLambda)*(cosU2*sinLambda) +
				(cosU1*sinU2-sinU1*cosU2*cosLambda)*(cosU1*sinU2-sinU1*cosU2*cosLambda))
		if sinSigma == 0 {
			// Coincident points.
			return Result{}, true
		}
		cosSigma = sinU1*sinU2 + cosU1*cosU2*cosLambda
		sigma = math.Atan2(sinSigma, cosSigma)
		sinAlpha := cosU1 * cosU2 * sinLambda / sinSigma
		cosSqAlpha = 1 - sinAlpha*sinAlpha
		if cosSqAlpha == 0 {
			// Equatorial line.
			cos2SigmaM = 0
		} else {
			cos2SigmaM = cosSigma - 2*sinU1*sinU2/cosSqAlpha
		}
		c := flattening / 16 * cosSqAlpha * (4 + flattening*(4-3*cosSqAlpha))
		lambdaPrev := lambda
		lambda = l + (1-c)*flattening*sinAlpha*
			(sigma+c*sinSigma*(cos2SigmaM+c*cosSigma*(-1+2*cos2SigmaM*cos2SigmaM)))
		if math.Abs(lambda-lambdaPrev) < convergence {
			converged = true
			break
		}
	}
	if !converged {
		return Result{}, false
	}

	uSq := cosSqAlpha * (semiMajor*semiMajor - semiMinor*semiMinor) / (semiMinor * semiMinor)
	a := 1 + uSq/16384*(4096+uSq*(-768+uSq*(320-175*uSq)))
	b := uSq / 1024 * (256 + uSq*(-128+uSq*(74-47*uSq)))
	deltaSigma := b * sinSigma * (cos2SigmaM + b/4*
		(cosSigma*(-1+2*cos2SigmaM*cos2SigmaM)-
			b/6*cos2SigmaM*(-3+4*sinSigma*sinSigma)*(-3+4*cos2SigmaM*cos2SigmaM)))

	dist := semiMinor * a * (sigma - deltaSigma)
	alpha1 := math.Atan2(cosU2*sinLambda, cosU1*sinU2-sinU1*cosU2*cosLambda)
	alpha2 := math.Atan2(cosU1*sinLambda, -sinU1*cosU2+cosU1*sinU2*cosLambda)

	return Result{
		Distance:       dist,
		InitialBearing: normalizeBearing(degrees(alpha1)),
		FinalBearing:   normalizeBearing(degrees(alpha2)),
	}, true
}

// lambert approximates the geodesic distance with Lambert's formula on the
// reduced latitudes. Less accurate than Vincenty (order 10 m over long
// distances) but never fails to produce a value.
func lambert(lat1, lon1, lat2, lon2 float64) Result {
	beta1 := math.Atan((1 - flattening) * math.Tan(radians(lat1)))
	beta2 := math.Atan((1 - flattening) * math.Tan(radians(lat2)))

	// Central angle on the auxiliary sphere via the haversine form.
	dBeta := beta2 - beta1
	dLon := radians(lon2 - lon1)
	h := math.Sin(dBeta/2)*math.Sin(dBeta/2) +
		math.Cos(beta1)*math.Cos(beta2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	sigma := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	if sigma == 0 {
		return Result{}
	}

	p := (beta1 + beta2) / 2
	q := (beta2 - beta1) / 2
	x := (sigma - math.Sin(sigma)) * math.Sin(p) * math.Sin(p) * math.Cos(q) * math.Cos(q) /
		(math.Cos(sigma/2) * math.Cos(sigma/2))
	y := (sigma + math.Sin(sigma)) * math.Cos(p) * math.Cos(p) * math.Sin(q) * math.Sin(q) /
		(math.Sin(sigma/2) * math.Sin(sigma/2))
	dist := semiMajor * (sigma - flattening/2*(x+y))

	// Bearings from spherical trigonometry on the auxiliary sphere.
	alpha1 := math.Atan2(
		math.Sin(dLon)*math.Cos(beta2),
		math.Cos(beta1)*math.Sin(beta2)-math.Sin(beta1)*math.Cos(beta2)*math.Cos(dLon))
	alpha2 := math.Atan2(
		math.Sin(dLon)*math.Cos(beta1),
		-math.Sin(beta1)*math.Cos(beta2)+math.Cos(beta1)*math.Sin(beta2)*math.Cos(dLon))

	return Result{
		Distance:       dist,
		InitialBearing: normalizeBearing(degrees(alpha1)),
		FinalBearing:   normalizeBearing(degrees(alpha2)),
	}
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }
func degrees(rad float64) float64 { return rad * 180 / math.Pi }

func normalizeBearing(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}
