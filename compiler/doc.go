/*

Process of compilation

Program Text ->
	parse ->
Abstract Syntax Tree (ast) ->
	check ->
Annotated Syntax Tree (ast + tp) ->
	generate ->
Code Unit (bytecode) ->
	run ->
Result (vm)

Code Unit ->
	disassemble ->
Listing (asm)

Every phase reports user errors to a diag.Stream.
The driver stops after a phase that reported any.

*/
package compiler
