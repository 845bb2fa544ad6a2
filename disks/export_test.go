package disks

// ParseGeometries exposes the CSV parser to tests.
var ParseGeometries = parseGeometries
