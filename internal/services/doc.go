// Package services wires the reduction engine to the file layout of a
// measurement campaign.
//
// ReductionService reads the segment workbook of a campaign, loads every
// channel group of the listed recordings from the data directory, resolves
// calibration strategies, geometry and the wall reference, runs the
// pipeline and keeps the results for later retrieval. Files follow the
// rig's naming scheme:
//
//	<data_dir>/<recording>_<group>.csv   channel groups
//	<data_dir>/<tap_table>               pressure tap layout
//	<data_dir>/<wall reference_table>    reference cp distribution
//	<calibration_dir>/<key>.json         calibration records
package services
