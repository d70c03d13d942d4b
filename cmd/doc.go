/*
Package cmd is where all command-line options for the refresher are defined.
These commands should parse user-provided variables and call other refresher
functions. Very limited logic should exist in cmd outside of what is necessary
to instantiate other refresher components.
*/
package cmd
