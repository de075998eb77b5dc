/*
Package evaluation is the default trade evaluator.

It computes the projected value delta for both sides, flags injured players, looks up
comparable past trades, assigns a letter grade, and asks a text generator for a persona
writeup. Value, risk, and grade are pure functions of the league snapshot and proposal.
*/
package evaluation
