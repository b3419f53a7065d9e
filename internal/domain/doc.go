// Package domain models solar activity data from NASA's DONKI catalog and
// the pure classification and scoring rules applied to it.
//
// # Data Source
//
// Events originate from the Space Weather Database Of Notifications,
// Knowledge, Information (DONKI), available at https://api.nasa.gov/DONKI.
// Two catalogs are consumed: CME (coronal mass ejections) and FLR (solar
// flares). The feed adapter polls both for a trailing observation window and
// delivers them as raw events; everything in this package is pure
// transformation of those records.
//
// # DONKI Data Conventions
//
// Activity IDs:
//
//	"<ISO start time>-<catalog>-001", e.g. "2024-05-10T16:36:00-CME-001".
//	Stable across refetches, so they double as event IDs. Records missing an
//	activity ID get a deterministic SHA-256 fallback, see [eventID].
//
// CME analyses:
//
//	A CME carries zero or more analysis records (speed in km/s, heliographic
//	latitude and longitude in degrees). Analyses trickle in over hours as
//	observers refine measurements; classification uses the first record and
//	treats a CME without one as unmeasured rather than dropping it.
//
// Flare classes:
//
//	GOES X-ray flux classes: a letter A, B, C, M or X plus a numeric
//	multiplier, e.g. "M2.4". Each letter step is a tenfold flux increase.
//	Only the letter matters for classification; unrecognized or missing
//	class strings are kept with an unknown severity.
//
// Earth-directed flag:
//
//	A CME is flagged earth-directed when its first analysis reports
//	|latitude| < 30°. A coarse screen: low-latitude ejections are the ones
//	that can couple into the ecliptic and reach Earth.
//
// Severity classification:
//
//	CME (by analyzed speed):  ≤500 km/s low | >500 moderate | >1000 high | >2000 extreme
//	Flare (by class letter):  A,B low | C moderate | M high | X extreme
//
//	Events without a usable measurement classify as unknown and are excluded
//	from distributions but not from counts.
//
// # Risk Scoring
//
// The composite risk index weighs raw event counts: 2 points per CME capped
// at 10, 1.5 points per flare capped at 8, normalized from the 18-point
// maximum to a 0-100 score and rounded to one decimal. Score bands map to
// levels (minimal, low, moderate, high, extreme) with fixed dashboard
// colors. See [ComputeRiskIndex].
package domain
