// Package dialect reads the log files written by the battery cycler and turns
// them into typed tables.
//
// A log mixes section lines with samples. A typical file starts like this:
//
//	%,Time
//	@,16
//	Label,Fuction,Set,Record Time,Change
//	,,CC-CV,I=2.500,V=3.700
//	$,16,Loop (S1)=1/2000,Loop (S2)=8/100
//	System Time,Step Time,V,I,T,R,P,mAh,Wh,Total Time
//	24/01/01 00:00:00,00:00:00,3.701,2.500,25.1,0.012,9.25,0.0,0.0,00:00:00
//
// A line starting with two empty fields names the step whose samples follow.
// A line whose first field is "%" closes the current step. The "System Time"
// header fixes how many fields a sample line must have.
//
// Parsing runs in four stages: [Resolve] picks a text encoding, [Scan]
// classifies lines with [Classify], [Materialize] builds the detail and step
// tables, and [WriteTable] serializes them.
package dialect
