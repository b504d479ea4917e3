package stataprep

/*

Package stataprep reads binary datasets from the Stata and SAS
commercial statistical packages and prepares them for use in other
tools.  The Stata dta file format is well-documented, and this code
reads dta formats 114, 115, 117, and 118.  There is no official
documentation of the SAS7BDAT format, so that reader is based on
previous efforts to reverse-engineer the format.

The package also includes a simple column-oriented data container
called a Series, and a CSV reader that infers the datatype of each
column and places the columns into an array of Series objects.  The
Stata and SAS readers return data the same way.

The Stata and SAS readers behave similarly, and both satisfy the
StatFileReader interface.  Both readers can read a file by chunks
(ranges of consecutive records) to facilitate processing of extremely
large files.

The command line tool built on this package converts whole directory
trees of dta and sas7bdat files to csv or parquet form, extracts
column name listings, and prunes empty columns from csv files.  See
the cmd/stataprep directory and the internal packages for the
individual operations.

*/
