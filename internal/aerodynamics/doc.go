// Package aerodynamics turns calibrated pressures into aerodynamic
// coefficients.
//
// Every transform takes an immutable frame and returns a new frame carrying
// the derived columns together with a stage marker. Transforms whose
// repetition would corrupt results (the pressure coefficient transform and
// both wall corrections) refuse to run on a frame that already carries
// their marker, and stages that depend on one another check for the
// prerequisite marker. The expected order is
//
//	Airspeed -> PressureCoefficients -> CorrectAngleOfAttack ->
//	SurfaceLoads -> WakeDrag -> WallCorrection.Apply
//
// Surface loads are therefore always integrated from uncorrected cp.
//
// Sign conventions: the contour is traversed from the upper trailing edge
// over the leading edge to the lower trailing edge, s is the arclength in
// chords, normals point out of the body and alpha is in degrees.
package aerodynamics
