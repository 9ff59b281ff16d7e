package transport

const namePrefix = "dotnet-diagnostic"
