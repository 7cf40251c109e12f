/*
Package cli implements the ensemble command line: "ensemble run" runs one
ensemble from a JSON config and flags, "ensemble drivers" lists the
execution backends and the options they take.

	ensemble run --config=case.json --realizations=100 --min_realizations=80 -- /opt/flow/bin/flow CASE-<IENS>.DATA
*/
package cli
